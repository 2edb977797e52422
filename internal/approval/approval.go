// Package approval issues single-use approval codes and tracks each one
// through Pending → Approved | Denied | Expired.
//
// Every code has its own lock. There is no lock shared across codes, and no
// I/O happens while a code's lock is held.
package approval

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Status represents the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// ErrUnknownCode is returned by Wait for a code that was never issued or
// whose outcome was already collected.
var ErrUnknownCode = errors.New("unknown approval code")

// Request describes the action a human is asked to approve.
type Request struct {
	WorkspaceID string
	SessionID   string
	Capability  string
	Summary     string
	Reason      string
}

// Approval is one approval request and its state.
type Approval struct {
	Code        string     `json:"code"`
	Status      Status     `json:"status"`
	WorkspaceID string     `json:"workspace_id"`
	SessionID   string     `json:"session_id"`
	Capability  string     `json:"capability"`
	Summary     string     `json:"summary"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	OwnerPID    int        `json:"owner_pid,omitempty"`
}

// Outcome is what a waiter observes once a code leaves Pending.
type Outcome struct {
	Code       string    `json:"code"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Approved reports whether the human approved the action.
func (o Outcome) Approved() bool {
	return o.Status == StatusApproved
}

// Clock abstracts time so tests can drive expiry without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// codeAlphabet omits characters that are easy to misread (0/o, 1/l/i).
const codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// CodeLength is the number of characters in an approval code.
const CodeLength = 6

func randomCode() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate approval code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
