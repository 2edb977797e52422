package model

// Decision is the output of the gating matrix.
type Decision string

const (
	Allow         Decision = "allow"
	CopReview     Decision = "cop_review"
	HumanApproval Decision = "human_approval"
	Blocked       Decision = "blocked"
)

// Outcome is what the caller of the policy facade receives.
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeDeny    Outcome = "deny"
	OutcomePending Outcome = "pending"
)

// Kind labels the branch that produced a decision. Audit records carry it.
type Kind string

const (
	KindAllow         Kind = "allow"
	KindCopReview     Kind = "cop_review"
	KindHumanApproval Kind = "human_approval"
	KindBlocked       Kind = "blocked"
	KindRateLimited   Kind = "rate_limited"
)

// ReviewVerdict is the content reviewer's answer.
type ReviewVerdict struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// PolicyResult is the authoritative answer for one evaluated action.
type PolicyResult struct {
	Outcome      Outcome        `json:"outcome"`
	Decision     Decision       `json:"decision"`
	Kind         Kind           `json:"kind"`
	Reason       string         `json:"reason"`
	ApprovalCode string         `json:"approval_code,omitempty"`
	Reviewer     *ReviewVerdict `json:"reviewer,omitempty"`
	Denial       DenialKind     `json:"denial,omitempty"`
}

// Allowed reports whether the action may proceed.
func (r PolicyResult) Allowed() bool {
	return r.Outcome == OutcomeAllow
}

// Err returns nil for allowed results and a *DeniedError otherwise.
func (r PolicyResult) Err() error {
	if r.Allowed() {
		return nil
	}
	kind := r.Denial
	if kind == "" {
		kind = DenialPolicy
	}
	return &DeniedError{Kind: kind, Reason: r.Reason}
}
