package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/audit"
	"github.com/crypdick/pynchy-gate/internal/channel"
	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/policy"
	"github.com/crypdick/pynchy-gate/internal/review"
)

// stack is a fully wired engine with the resources it owns.
type stack struct {
	cfg       *config.Config
	hash      string
	engine    *policy.Engine
	approvals *approval.Manager
	store     *audit.Store
	mqtt      *channel.MQTTChannel
}

// buildStack loads the config at path and wires reviewer, human channels,
// approval manager and audit store into an engine.
func buildStack(path string) (*stack, error) {
	cfg, hash, err := config.LoadWithHash(path)
	if err != nil {
		return nil, err
	}

	reviewer, err := newReviewer(cfg.Reviewer)
	if err != nil {
		return nil, err
	}

	st := &stack{cfg: cfg, hash: hash}

	var channels channel.Multi
	if cfg.Channels.Log {
		channels = append(channels, channel.NewLogChannel(logging.Component("approval-prompt")))
	}
	if cfg.Channels.Webhook != nil {
		channels = append(channels, channel.NewWebhookChannel(*cfg.Channels.Webhook))
	}
	if cfg.Channels.MQTT != nil {
		st.mqtt = channel.NewMQTTChannel(*cfg.Channels.MQTT, logging.Component("mqtt"))
		channels = append(channels, st.mqtt)
	}

	journalDir := cfg.Approval.JournalDir
	if journalDir == "" {
		journalDir = approval.DefaultDir()
	}
	journal, err := approval.NewFileJournal(journalDir)
	if err != nil {
		return nil, fmt.Errorf("open approval journal: %w", err)
	}

	opts := approval.Options{
		Timeout:       cfg.Approval.Timeout,
		SweepInterval: cfg.Approval.SweepInterval,
		Journal:       journal,
		Logger:        logging.Component("approval"),
	}
	if len(channels) > 0 {
		opts.Prompter = channels
	}
	st.approvals = approval.NewManager(opts)

	st.store, err = audit.Open(auditPath(cfg))
	if err != nil {
		return nil, err
	}

	st.engine = policy.New(policy.Options{
		Snapshot:  policy.NewSnapshot(cfg, hash),
		Reviewer:  reviewer,
		Approvals: st.approvals,
		Audit:     st.store,
		Logger:    logging.Component("policy"),
	})
	return st, nil
}

// recoverApprovals denies and audits approvals left pending by a previous run.
// Only the long-running server calls it; short-lived processes share the
// journal directory with it.
func (st *stack) recoverApprovals(ctx context.Context) {
	log := logging.Component("gate")

	orphans, err := st.approvals.Recover()
	if err != nil {
		log.WithError(err).Warn("approval recovery failed")
	}
	if len(orphans) > 0 {
		log.WithField("count", len(orphans)).Warn("denying approvals left pending by a previous run")
		st.engine.AuditRecovered(ctx, orphans)
	}
}

// start launches the background loops on g: the approval sweep, the audit
// pruner and the MQTT reply listener.
func (st *stack) start(ctx context.Context, g *errgroup.Group) error {
	log := logging.Component("gate")

	g.Go(func() error { return st.approvals.Run(ctx) })

	if st.cfg.Audit.Retention > 0 {
		pruner, err := audit.NewPruner(st.store, st.cfg.Audit.Retention, st.cfg.Audit.PruneSchedule, logging.Component("audit-pruner"))
		if err != nil {
			return err
		}
		g.Go(func() error { return pruner.Run(ctx) })
	}

	if st.mqtt != nil {
		onReply := func(workspaceID, text string) {
			res := st.engine.Reply(workspaceID, text)
			if res.Matched && res.Outcome == nil {
				log.WithFields(logging.Fields{"workspace": workspaceID, "code": res.Code}).Info("reply did not match a pending approval")
			}
		}
		if err := st.mqtt.Start(ctx, onReply); err != nil {
			// prompts still go out on the other channels
			log.WithError(err).Warn("mqtt channel unavailable")
		}
	}
	return nil
}

// Close releases the stack's resources.
func (st *stack) Close() {
	if st.mqtt != nil {
		_ = st.mqtt.Stop()
	}
	if st.store != nil {
		_ = st.store.Close()
	}
}

func newReviewer(cfg config.ReviewerConfig) (review.Reviewer, error) {
	switch cfg.Kind {
	case "openai":
		r, err := review.NewOpenAI(review.OpenAIOptions{
			APIKey:  os.Getenv(cfg.APIKeyEnv),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure reviewer (%s): %w", cfg.APIKeyEnv, err)
		}
		return r, nil
	default:
		return review.PassReviewer{}, nil
	}
}

func auditPath(cfg *config.Config) string {
	if cfg.Audit.Path != "" {
		return cfg.Audit.Path
	}
	return audit.DefaultPath()
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}
