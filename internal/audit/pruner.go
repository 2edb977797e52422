package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

// DefaultPruneSchedule runs retention once a day at midnight.
const DefaultPruneSchedule = "@daily"

// Pruner deletes records older than the retention period on a cron schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	schedule  cron.Schedule
	log       *logging.Entry
	now       func() time.Time
}

// NewPruner parses schedule (standard five-field cron or a descriptor such
// as @daily) and returns a Pruner.
func NewPruner(store *Store, retention time.Duration, schedule string, log *logging.Entry) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse prune schedule: %w", err)
	}
	return &Pruner{
		store:     store,
		retention: retention,
		schedule:  sched,
		log:       logging.OrDiscard(log),
		now:       time.Now,
	}, nil
}

// PruneOnce deletes records older than now minus the retention period.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.log.WithFields(logging.Fields{
		"deleted": n,
		"cutoff":  cutoff.UTC().Format(TimestampFormat),
	}).Info("audit retention pruned")
	return n, nil
}

// Next returns the next scheduled run after from.
func (p *Pruner) Next(from time.Time) time.Time {
	return p.schedule.Next(from)
}

// Run prunes on schedule until ctx ends.
func (p *Pruner) Run(ctx context.Context) error {
	for {
		wait := time.Until(p.Next(p.now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := p.PruneOnce(ctx); err != nil {
				p.log.WithError(err).Error("audit retention failed")
			}
		}
	}
}
