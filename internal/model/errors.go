package model

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyDenied is a deterministic, non-retryable denial.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrRateLimited is transient; the caller may retry once the window advances.
	ErrRateLimited = errors.New("rate limited")
	// ErrApprovalTimeout is a denial caused by no human reply before the deadline.
	ErrApprovalTimeout = errors.New("approval timed out")
	// ErrAdapterUnavailable means the reviewer or human channel could not be reached.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
)

// DenialKind classifies why an action was denied.
type DenialKind string

const (
	DenialPolicy      DenialKind = "policy_denied"
	DenialRateLimited DenialKind = "rate_limited"
	DenialTimeout     DenialKind = "approval_timeout"
	DenialUnavailable DenialKind = "adapter_unavailable"
)

// DeniedError is returned to callers that want an error for a denied action.
type DeniedError struct {
	Kind       DenialKind
	Capability string
	Reason     string
}

func (e *DeniedError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("%s denied (%s): %s", e.Capability, e.Kind, e.Reason)
	}
	return fmt.Sprintf("denied (%s): %s", e.Kind, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	switch e.Kind {
	case DenialRateLimited:
		return ErrRateLimited
	case DenialTimeout:
		return ErrApprovalTimeout
	case DenialUnavailable:
		return ErrAdapterUnavailable
	default:
		return ErrPolicyDenied
	}
}

// Is lets approval timeouts also match ErrPolicyDenied; both are terminal.
func (e *DeniedError) Is(target error) bool {
	return target == ErrPolicyDenied && e.Kind == DenialTimeout
}

// Retryable reports whether the caller may retry the same action later.
func (e *DeniedError) Retryable() bool {
	return e.Kind == DenialRateLimited
}
