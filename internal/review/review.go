// Package review provides the content reviewer consulted for actions the
// gate routes to CopReview.
package review

import (
	"context"

	"github.com/crypdick/pynchy-gate/internal/model"
)

// Reviewer inspects one action and reports whether it looks like an
// attempt to exfiltrate data or act on injected instructions.
type Reviewer interface {
	Review(ctx context.Context, summary, payload string) (model.ReviewVerdict, error)
}

// PassReviewer never flags anything. Deployments without an LLM reviewer
// use it so callers never branch on whether a reviewer exists.
type PassReviewer struct{}

// Review implements Reviewer.
func (PassReviewer) Review(context.Context, string, string) (model.ReviewVerdict, error) {
	return model.ReviewVerdict{Flagged: false, Reason: "no reviewer configured"}, nil
}

// Func adapts a function to the Reviewer interface.
type Func func(ctx context.Context, summary, payload string) (model.ReviewVerdict, error)

// Review implements Reviewer.
func (f Func) Review(ctx context.Context, summary, payload string) (model.ReviewVerdict, error) {
	return f(ctx, summary, payload)
}
