package audit

import (
	"context"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

// BestEffort wraps a Sink so that recording never fails the caller.
// Failures are logged and dropped.
type BestEffort struct {
	sink Sink
	log  *logging.Entry
}

// Best wraps sink. A nil sink records nothing.
func Best(sink Sink, log *logging.Entry) *BestEffort {
	return &BestEffort{sink: sink, log: logging.OrDiscard(log)}
}

// Record writes r to the wrapped sink and logs any error.
func (b *BestEffort) Record(ctx context.Context, r Record) {
	if b == nil || b.sink == nil {
		return
	}
	// the decision is already made; a cancelled request must still be audited
	if err := b.sink.Record(context.WithoutCancel(ctx), r); err != nil {
		b.log.WithError(err).WithFields(logging.Fields{
			"workspace":  r.WorkspaceID,
			"session":    r.SessionID,
			"capability": r.Capability,
			"kind":       r.Kind,
		}).Error("audit record dropped")
	}
}
