package pynchygate

import (
	"fmt"

	"github.com/crypdick/pynchy-gate/internal/model"
)

// Errors a denied action matches with errors.Is.
var (
	ErrPolicyDenied       = model.ErrPolicyDenied
	ErrRateLimited        = model.ErrRateLimited
	ErrApprovalTimeout    = model.ErrApprovalTimeout
	ErrAdapterUnavailable = model.ErrAdapterUnavailable
)

// Action describes what a tool intends to do.
type Action struct {
	Capability string // service or tool name as declared in the config
	Operation  string // "read" or "write"; anything else is treated as write
	Mode       string // "fire_and_forget" or "request_reply"; empty uses the gate default
	Payload    string // content shown to the reviewer; the command for the shell capability
}

// Result is the gate's answer for one action.
type Result struct {
	Outcome      string
	Decision     string
	Reason       string
	ApprovalCode string

	denial model.DenialKind
}

// Allowed reports whether the action may proceed.
func (r Result) Allowed() bool {
	return r.Outcome == string(model.OutcomeAllow)
}

// BlockedError is returned by a wrapped tool the gate did not allow.
type BlockedError struct {
	Action Action
	Result Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("pynchy-gate blocked %s (%s): %s", e.Action.Capability, e.Result.Decision, e.Result.Reason)
}

// Unwrap exposes the denial as one of the package's sentinel errors.
func (e *BlockedError) Unwrap() error {
	kind := e.Result.denial
	if kind == "" {
		kind = model.DenialPolicy
	}
	return &model.DeniedError{Kind: kind, Capability: e.Action.Capability, Reason: e.Result.Reason}
}

func toModelAction(a Action, workspace, session string) model.Action {
	return model.Action{
		Capability:  a.Capability,
		Operation:   model.ParseOperation(a.Operation),
		SessionID:   session,
		WorkspaceID: workspace,
		Mode:        model.ActionMode(a.Mode),
		Payload:     a.Payload,
	}
}

func toResult(pr model.PolicyResult) Result {
	return Result{
		Outcome:      string(pr.Outcome),
		Decision:     string(pr.Decision),
		Reason:       pr.Reason,
		ApprovalCode: pr.ApprovalCode,
		denial:       pr.Denial,
	}
}
