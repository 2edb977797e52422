// Package policy sequences the gate's components into one call per action.
//
// Evaluation order (must not be changed):
//  1. Rate limit: rejected calls end here
//  2. Gate decision: trust declaration and session taint, or the command
//     classifier for shell actions
//  3. Taint update for allowed reads
//  4. CopReview: content reviewer, mapped back onto a decision
//  5. HumanApproval: approval manager, awaited
//
// Every call writes exactly one audit record, whichever step it ends on.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/audit"
	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/gate"
	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/ratelimit"
	"github.com/crypdick/pynchy-gate/internal/review"
	"github.com/crypdick/pynchy-gate/internal/taint"
)

// Options configures an Engine.
type Options struct {
	Snapshot  *Snapshot
	Reviewer  review.Reviewer   // nil means review.PassReviewer
	Approvals *approval.Manager // nil means every HumanApproval is denied
	Audit     audit.Sink        // nil means no audit trail
	Logger    *logging.Entry
}

// Engine is the policy facade. It is safe for concurrent use.
type Engine struct {
	snap      atomic.Pointer[Snapshot]
	taint     *taint.Tracker
	limiter   *ratelimit.Limiter
	reviewer  review.Reviewer
	approvals *approval.Manager
	audit     *audit.BestEffort
	log       *logging.Entry
}

// New creates an Engine.
func New(opts Options) *Engine {
	snap := opts.Snapshot
	if snap == nil {
		snap = &Snapshot{}
	}
	snap = snap.fill()

	log := logging.OrDiscard(opts.Logger)
	e := &Engine{
		taint:     taint.NewTracker(snap.Registry, snap.SecretWorkspaces),
		limiter:   ratelimit.NewLimiter(snap.Limits),
		reviewer:  opts.Reviewer,
		approvals: opts.Approvals,
		log:       log,
	}
	if e.reviewer == nil {
		e.reviewer = review.PassReviewer{}
	}
	if opts.Audit != nil {
		e.audit = audit.Best(opts.Audit, log)
	}
	e.snap.Store(snap)
	return e
}

// Reload swaps the registry, secret workspaces, limits and shell settings.
// Evaluations already running keep the snapshot they started with. Session
// taint and rate-limit history survive the swap.
func (e *Engine) Reload(s *Snapshot) {
	s = s.fill()
	e.snap.Store(s)
	e.taint.Configure(s.Registry, s.SecretWorkspaces)
	e.limiter.Configure(s.Limits)
	e.log.WithFields(logging.Fields{
		"services":    s.Registry.Len(),
		"config_hash": s.ConfigHash,
	}).Info("policy reloaded")
}

// Snapshot returns the active snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

type evalOptions struct {
	onPending func(model.PolicyResult)
}

// EvalOption adjusts a single Evaluate call.
type EvalOption func(*evalOptions)

// OnPending registers fn to be called once a human approval code has been
// issued, before Evaluate starts waiting. The result carries the code and
// OutcomePending.
func OnPending(fn func(model.PolicyResult)) EvalOption {
	return func(o *evalOptions) { o.onPending = fn }
}

// Evaluate decides one action. It blocks while a human approval is pending
// and returns once the approval resolves or ctx ends.
func (e *Engine) Evaluate(ctx context.Context, a model.Action, opts ...EvalOption) (res model.PolicyResult) {
	var o evalOptions
	for _, opt := range opts {
		opt(&o)
	}

	snap := e.snap.Load()
	a = normalize(a, snap)

	defer func() {
		e.record(ctx, snap, a, res)
	}()

	rl := e.limiter.CheckAndRecord(a.WorkspaceID, trustName(a.Capability))
	if !rl.Allowed {
		return model.PolicyResult{
			Outcome:  model.OutcomeDeny,
			Decision: model.Blocked,
			Kind:     model.KindRateLimited,
			Reason:   rl.Reason,
			Denial:   model.DenialRateLimited,
		}
	}

	t := e.taint.Start(a.SessionID, a.WorkspaceID)
	var v gate.Verdict
	if snap.isShell(a.Capability) {
		v = decideCommand(snap, a, t)
	} else {
		d := snap.Registry.Resolve(a.Capability)
		v = gate.Decide(a.Capability, d, t, a.Operation)
		if a.Operation == model.Read && v.Decision == model.Allow {
			after := e.taint.RecordDeclaredRead(a.SessionID, a.WorkspaceID, d)
			if after != t {
				e.log.WithFields(logging.Fields{
					"session":    a.SessionID,
					"capability": a.Capability,
					"corruption": after.CorruptionTainted,
					"secret":     after.SecretTainted,
				}).Info("session tainted")
			}
		}
	}

	switch v.Decision {
	case model.Allow:
		return allowed(model.KindAllow, v)
	case model.Blocked:
		return denied(model.KindBlocked, v, model.DenialPolicy)
	case model.CopReview:
		return e.review(ctx, a, t, v, o)
	default:
		return e.escalate(ctx, a, model.KindHumanApproval, v, nil, o)
	}
}

func decideCommand(snap *Snapshot, a model.Action, t model.TaintSnapshot) gate.Verdict {
	var shell model.TrustDeclaration
	if d, declared := snap.Registry.Lookup(a.Capability); declared {
		shell = d
	}
	class := snap.Classifier.Classify(a.Payload)
	v := gate.DecideCommand(a.Capability, shell, class.Class, t)
	if v.Decision != model.Blocked && class.Class != bashgate.LocalSafe && class.Reason != "" {
		v.Reason += " (" + class.Reason + ")"
	}
	return v
}

func (e *Engine) review(ctx context.Context, a model.Action, t model.TaintSnapshot, v gate.Verdict, o evalOptions) model.PolicyResult {
	verdict, err := e.reviewer.Review(ctx, a.Summary(), a.Payload)
	var rv *model.ReviewVerdict
	if err == nil {
		rv = &verdict
	} else {
		e.log.WithError(err).WithFields(logging.Fields{
			"session":    a.SessionID,
			"capability": a.Capability,
			"mode":       a.Mode,
		}).Warn("reviewer unavailable")
	}

	mapped := gate.MapReview(verdict, err, t, a.Mode)
	var res model.PolicyResult
	switch mapped.Decision {
	case model.Allow:
		res = allowed(model.KindCopReview, mapped)
	case model.Blocked:
		res = denied(model.KindCopReview, mapped, model.DenialPolicy)
	default:
		res = e.escalate(ctx, a, model.KindCopReview, mapped, rv, o)
	}
	res.Reviewer = rv
	return res
}

// escalate issues an approval code and waits for it to resolve.
func (e *Engine) escalate(ctx context.Context, a model.Action, kind model.Kind, v gate.Verdict, rv *model.ReviewVerdict, o evalOptions) model.PolicyResult {
	res := model.PolicyResult{Decision: model.HumanApproval, Kind: kind, Reviewer: rv}

	if e.approvals == nil {
		res.Outcome = model.OutcomeDeny
		res.Reason = "denied: " + approval.ReasonUnavailable
		res.Denial = model.DenialUnavailable
		return res
	}

	code, err := e.approvals.Request(ctx, approval.Request{
		WorkspaceID: a.WorkspaceID,
		SessionID:   a.SessionID,
		Capability:  a.Capability,
		Summary:     a.Summary(),
		Reason:      v.Reason,
	})
	res.ApprovalCode = code
	if err != nil {
		if code != "" {
			// Already resolved as denied; collect it so the entry is freed.
			_, _ = e.approvals.Wait(context.WithoutCancel(ctx), code)
		}
		res.Outcome = model.OutcomeDeny
		res.Reason = "denied: " + approval.ReasonUnavailable
		res.Denial = model.DenialUnavailable
		if !errors.Is(err, model.ErrAdapterUnavailable) {
			res.Reason = fmt.Sprintf("denied: approval request failed: %v", err)
		}
		return res
	}

	if o.onPending != nil {
		pending := res
		pending.Outcome = model.OutcomePending
		pending.Reason = v.Reason
		o.onPending(pending)
	}

	out, err := e.approvals.Wait(ctx, code)
	if err != nil {
		res.Outcome = model.OutcomeDeny
		res.Reason = fmt.Sprintf("denied: stopped waiting for approval %s: %v", code, err)
		res.Denial = model.DenialPolicy
		return res
	}

	switch out.Status {
	case approval.StatusApproved:
		res.Outcome = model.OutcomeAllow
		res.Reason = fmt.Sprintf("%s (%s)", approval.ReasonApproved, v.Reason)
	case approval.StatusExpired:
		res.Outcome = model.OutcomeDeny
		res.Reason = fmt.Sprintf("denied: no approval received within %s", e.approvals.Timeout())
		res.Denial = model.DenialTimeout
	default:
		res.Outcome = model.OutcomeDeny
		res.Reason = "denied: " + out.Reason
		res.Denial = model.DenialPolicy
		if out.Reason == approval.ReasonUnavailable {
			res.Denial = model.DenialUnavailable
		}
	}
	return res
}

// Check returns the gate decision for a without recording taint, rate
// usage or an audit record. Reviewer and human steps are not run.
func (e *Engine) Check(a model.Action) gate.Verdict {
	snap := e.snap.Load()
	a = normalize(a, snap)

	t := e.taint.Snapshot(a.SessionID)
	if snap.secret[a.WorkspaceID] {
		t.SecretTainted = true
	}
	if snap.isShell(a.Capability) {
		return decideCommand(snap, a, t)
	}
	return gate.Decide(a.Capability, snap.Registry.Resolve(a.Capability), t, a.Operation)
}

// Reply routes a human message from a workspace to the approval manager.
func (e *Engine) Reply(workspaceID, text string) approval.ReplyResult {
	if e.approvals == nil {
		return approval.ReplyResult{}
	}
	return e.approvals.HandleReply(workspaceID, text)
}

// Pending lists approvals still waiting for a human.
func (e *Engine) Pending() []approval.Approval {
	if e.approvals == nil {
		return nil
	}
	return e.approvals.Pending()
}

// Taint returns a session's flags.
func (e *Engine) Taint(sessionID string) model.TaintSnapshot {
	return e.taint.Snapshot(sessionID)
}

// StartSession registers a session ahead of its first action.
func (e *Engine) StartSession(sessionID, workspaceID string) model.TaintSnapshot {
	return e.taint.Start(sessionID, workspaceID)
}

// EndSession drops a session's taint.
func (e *Engine) EndSession(sessionID string) {
	e.taint.End(sessionID)
}

// Usage reports a workspace's rate-limit usage in the current window.
func (e *Engine) Usage(workspaceID string) ratelimit.Usage {
	return e.limiter.Usage(workspaceID)
}

// AuditRecovered writes denial records for approvals orphaned by a restart.
func (e *Engine) AuditRecovered(ctx context.Context, orphans []approval.Approval) {
	snap := e.snap.Load()
	for _, a := range orphans {
		e.record(ctx, snap, model.Action{
			Capability:  a.Capability,
			Operation:   model.Write,
			SessionID:   a.SessionID,
			WorkspaceID: a.WorkspaceID,
		}, model.PolicyResult{
			Outcome:      model.OutcomeDeny,
			Decision:     model.HumanApproval,
			Kind:         model.KindHumanApproval,
			Reason:       "denied: " + approval.ReasonRestarted,
			ApprovalCode: a.Code,
			Denial:       model.DenialPolicy,
		})
	}
}

func (e *Engine) record(ctx context.Context, snap *Snapshot, a model.Action, res model.PolicyResult) {
	log := e.log.WithFields(logging.Fields{
		"workspace":  a.WorkspaceID,
		"session":    a.SessionID,
		"capability": a.Capability,
		"operation":  a.Operation,
		"decision":   res.Decision,
		"outcome":    res.Outcome,
		"reason":     res.Reason,
	})
	if res.ApprovalCode != "" {
		log = log.WithField("code", res.ApprovalCode)
	}
	if res.Allowed() {
		log.Debug("action allowed")
	} else {
		log.Info("action denied")
	}

	if e.audit == nil {
		return
	}
	rec := audit.Record{
		WorkspaceID:  a.WorkspaceID,
		SessionID:    a.SessionID,
		Capability:   a.Capability,
		Operation:    string(a.Operation),
		Kind:         string(res.Kind),
		Decision:     string(res.Outcome),
		Reason:       res.Reason,
		ApprovalCode: res.ApprovalCode,
		ConfigHash:   snap.ConfigHash,
	}
	if res.Reviewer != nil {
		flagged := res.Reviewer.Flagged
		rec.ReviewerFlagged = &flagged
		rec.ReviewerReason = res.Reviewer.Reason
	}
	e.audit.Record(ctx, rec)
}

func allowed(kind model.Kind, v gate.Verdict) model.PolicyResult {
	return model.PolicyResult{Outcome: model.OutcomeAllow, Decision: v.Decision, Kind: kind, Reason: v.Reason}
}

func denied(kind model.Kind, v gate.Verdict, denial model.DenialKind) model.PolicyResult {
	return model.PolicyResult{Outcome: model.OutcomeDeny, Decision: v.Decision, Kind: kind, Reason: v.Reason, Denial: denial}
}

func normalize(a model.Action, snap *Snapshot) model.Action {
	a.Operation = model.ParseOperation(string(a.Operation))
	def := model.RequestReply
	if snap.isShell(a.Capability) {
		def = snap.ShellMode
	}
	a.Mode = model.ParseMode(string(a.Mode), def)
	return a
}

func trustName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
