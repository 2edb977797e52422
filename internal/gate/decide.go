// Package gate implements the gating matrix.
//
// Every function here is pure: the same inputs always produce the same
// Verdict. Taint updates and side effects belong to the caller.
package gate

import (
	"fmt"

	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/model"
)

// Verdict is a gate decision with its human-readable reason and the id of
// the rule that produced it.
type Verdict struct {
	Decision model.Decision
	Reason   string
	RuleID   string
}

// Decide evaluates one service action.
//
// Evaluation order (first match wins, must not be changed):
//  1. Any forbidden attribute: Blocked
//  2. Write to a capability with risky dangerous_writes: HumanApproval
//  3. Write to a risky public sink from a dual-tainted session: HumanApproval
//  4. Write to a risky public sink from a corruption-tainted session: CopReview
//  5. Allow
//
// Reads that pass step 1 are always allowed; their effect is the taint
// the caller records before deciding.
func Decide(capability string, d model.TrustDeclaration, t model.TaintSnapshot, op model.OperationKind) Verdict {
	if attr := d.FirstForbidden(); attr != "" {
		return Verdict{
			Decision: model.Blocked,
			Reason:   fmt.Sprintf("blocked: %s %s is forbidden", capability, attr),
			RuleID:   "gate.forbidden." + attr,
		}
	}

	if op == model.Read {
		return Verdict{
			Decision: model.Allow,
			Reason:   fmt.Sprintf("read from %s allowed", capability),
			RuleID:   "gate.read",
		}
	}

	if d.DangerousWrites == model.Risky {
		return Verdict{
			Decision: model.HumanApproval,
			Reason:   fmt.Sprintf("approval required: %s performs dangerous writes", capability),
			RuleID:   "gate.dangerous_writes",
		}
	}

	if d.PublicSink == model.Risky {
		if t.Trifecta() {
			return Verdict{
				Decision: model.HumanApproval,
				Reason:   fmt.Sprintf("approval required: session holds untrusted input and secret data, %s is a public sink", capability),
				RuleID:   "gate.trifecta",
			}
		}
		if t.CorruptionTainted {
			return Verdict{
				Decision: model.CopReview,
				Reason:   fmt.Sprintf("review required: session holds untrusted input, %s is a public sink", capability),
				RuleID:   "gate.corrupted_sink",
			}
		}
	}

	return Verdict{
		Decision: model.Allow,
		Reason:   fmt.Sprintf("write to %s allowed", capability),
		RuleID:   "gate.allow",
	}
}

// DecideCommand evaluates a shell command already classified. shell is the
// shell capability's declaration; the zero value means undeclared.
func DecideCommand(capability string, shell model.TrustDeclaration, class bashgate.Classification, t model.TaintSnapshot) Verdict {
	if attr := shell.FirstForbidden(); attr != "" {
		return Verdict{
			Decision: model.Blocked,
			Reason:   fmt.Sprintf("blocked: %s %s is forbidden", capability, attr),
			RuleID:   "gate.forbidden." + attr,
		}
	}

	if class == bashgate.LocalSafe {
		return Verdict{
			Decision: model.Allow,
			Reason:   "local-safe command allowed",
			RuleID:   "bash.local_safe",
		}
	}

	switch {
	case t.Trifecta():
		return Verdict{
			Decision: model.HumanApproval,
			Reason:   fmt.Sprintf("approval required: %s command in a session holding untrusted input and secret data", class),
			RuleID:   "bash.trifecta",
		}
	case t.CorruptionTainted:
		return Verdict{
			Decision: model.CopReview,
			Reason:   fmt.Sprintf("review required: %s command in a session holding untrusted input", class),
			RuleID:   "bash.corrupted",
		}
	}
	return Verdict{
		Decision: model.Allow,
		Reason:   fmt.Sprintf("%s command allowed in untainted session", class),
		RuleID:   "bash.untainted",
	}
}

// MapReview turns the reviewer's answer on a CopReview into Allow,
// HumanApproval or Blocked.
//
// A reviewer error fails open for fire-and-forget actions and fails
// closed (to a human) for request-reply actions.
func MapReview(v model.ReviewVerdict, err error, t model.TaintSnapshot, mode model.ActionMode) Verdict {
	if err != nil {
		if mode == model.FireAndForget {
			return Verdict{
				Decision: model.Allow,
				Reason:   fmt.Sprintf("reviewer unavailable (%v), fire-and-forget action allowed", err),
				RuleID:   "review.unavailable.fail_open",
			}
		}
		return Verdict{
			Decision: model.HumanApproval,
			Reason:   fmt.Sprintf("approval required: reviewer unavailable (%v)", err),
			RuleID:   "review.unavailable.fail_closed",
		}
	}

	if !v.Flagged {
		return Verdict{
			Decision: model.Allow,
			Reason:   "reviewer did not flag the action",
			RuleID:   "review.clean",
		}
	}

	reason := v.Reason
	if reason == "" {
		reason = "no reason given"
	}

	if t.Trifecta() || mode != model.FireAndForget {
		return Verdict{
			Decision: model.HumanApproval,
			Reason:   "approval required: reviewer flagged the action: " + reason,
			RuleID:   "review.flagged.escalate",
		}
	}
	return Verdict{
		Decision: model.Blocked,
		Reason:   "blocked: reviewer flagged the action: " + reason,
		RuleID:   "review.flagged.block",
	}
}
