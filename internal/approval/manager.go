package approval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/crypdick/pynchy-gate/internal/logging"
	"github.com/crypdick/pynchy-gate/internal/model"
)

const (
	DefaultTimeout       = 5 * time.Minute
	DefaultSweepInterval = 5 * time.Second
	maxCodeAttempts      = 16
)

// Resolution reasons.
const (
	ReasonApproved    = "approved by human"
	ReasonDenied      = "denied by human"
	ReasonExpired     = "expired"
	ReasonTimedOut    = "timed out"
	ReasonUnavailable = "approval channel unavailable"
	ReasonRestarted   = "host restarted"
)

// Prompter delivers approval prompts to the humans of a workspace.
type Prompter interface {
	SendPrompt(ctx context.Context, workspaceID, text string) error
}

// Options configures a Manager. Zero values take defaults.
type Options struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	Clock         Clock
	Prompter      Prompter
	Journal       Journal
	Logger        *logging.Entry
}

type entry struct {
	mu       sync.Mutex
	approval Approval
	outcome  Outcome
	done     chan struct{}
}

func (e *entry) resolvedLocked() bool {
	return e.approval.Status.Terminal()
}

// Manager owns every outstanding approval code.
type Manager struct {
	timeout       time.Duration
	sweepInterval time.Duration
	clock         Clock
	prompter      Prompter
	journal       Journal
	log           *logging.Entry
	newCode       func() (string, error)
	pid           int
	alive         func(pid int) bool

	entries sync.Map // code → *entry
}

// NewManager creates a Manager. A nil Prompter makes every Request fail
// with ErrAdapterUnavailable.
func NewManager(opts Options) *Manager {
	m := &Manager{
		timeout:       opts.Timeout,
		sweepInterval: opts.SweepInterval,
		clock:         opts.Clock,
		prompter:      opts.Prompter,
		journal:       opts.Journal,
		log:           logging.OrDiscard(opts.Logger),
		newCode:       randomCode,
		pid:           os.Getpid(),
		alive:         processAlive,
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = DefaultSweepInterval
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	return m
}

// Timeout returns how long a code stays pending.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Request issues a new code for req, records it as pending, then sends the
// prompt. It does not wait for a reply.
//
// If the prompt cannot be delivered the code is resolved as denied and the
// returned error wraps model.ErrAdapterUnavailable. The code is returned
// either way so the caller can collect the outcome.
func (m *Manager) Request(ctx context.Context, req Request) (string, error) {
	now := m.clock.Now()
	e := &entry{
		approval: Approval{
			Status:      StatusPending,
			WorkspaceID: req.WorkspaceID,
			SessionID:   req.SessionID,
			Capability:  req.Capability,
			Summary:     req.Summary,
			Reason:      req.Reason,
			CreatedAt:   now,
			ExpiresAt:   now.Add(m.timeout),
			OwnerPID:    m.pid,
		},
		done: make(chan struct{}),
	}

	code, err := m.insert(e)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	a := e.approval
	e.mu.Unlock()

	if m.journal != nil {
		if err := m.journal.Save(a); err != nil {
			m.log.WithError(err).WithField("code", code).Warn("approval journal write failed")
		}
	}

	log := m.log.WithFields(logging.Fields{
		"code":       code,
		"workspace":  a.WorkspaceID,
		"session":    a.SessionID,
		"capability": a.Capability,
	})

	if m.prompter == nil {
		m.finish(code, e, StatusDenied, ReasonUnavailable)
		return code, fmt.Errorf("%w: no approval channel configured", model.ErrAdapterUnavailable)
	}
	if err := m.prompter.SendPrompt(ctx, a.WorkspaceID, FormatPrompt(a)); err != nil {
		log.WithError(err).Error("approval prompt not delivered")
		m.finish(code, e, StatusDenied, ReasonUnavailable)
		return code, fmt.Errorf("%w: %v", model.ErrAdapterUnavailable, err)
	}

	log.WithField("expires_at", a.ExpiresAt.Format(time.RFC3339)).Info("approval requested")
	return code, nil
}

func (m *Manager) insert(e *entry) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := m.newCode()
		if err != nil {
			return "", err
		}
		e.approval.Code = code
		if _, loaded := m.entries.LoadOrStore(code, e); !loaded {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique approval code after %d attempts", maxCodeAttempts)
}

// Wait blocks until code is resolved or ctx ends. When ctx ends first the
// code stays pending and the sweep will expire it.
func (m *Manager) Wait(ctx context.Context, code string) (Outcome, error) {
	v, ok := m.entries.Load(code)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	e := v.(*entry)

	select {
	case <-e.done:
		m.entries.Delete(code)
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Resolve applies a human decision. It returns nil for unknown or already
// resolved codes. A code past its deadline resolves as expired regardless
// of the decision.
func (m *Manager) Resolve(code string, approve bool) *Outcome {
	v, ok := m.entries.Load(code)
	if !ok {
		return nil
	}
	e := v.(*entry)

	status, reason := StatusDenied, ReasonDenied
	if approve {
		status, reason = StatusApproved, ReasonApproved
	}

	e.mu.Lock()
	if e.resolvedLocked() {
		e.mu.Unlock()
		return nil
	}
	if !m.clock.Now().Before(e.approval.ExpiresAt) {
		status, reason = StatusExpired, ReasonExpired
	}
	e.mu.Unlock()

	out, ok := m.finish(code, e, status, reason)
	if !ok {
		return nil
	}
	return &out
}

// ReplyResult reports what HandleReply did with a message.
type ReplyResult struct {
	Matched bool     `json:"matched"`
	Code    string   `json:"code,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// HandleReply routes a human message from a workspace. Messages that are
// not approval replies are ignored. A reply only resolves codes issued for
// the same workspace.
func (m *Manager) HandleReply(workspaceID, text string) ReplyResult {
	code, approve, ok := ParseReply(text)
	if !ok {
		return ReplyResult{}
	}
	res := ReplyResult{Matched: true, Code: code}

	v, found := m.entries.Load(code)
	if !found {
		return res
	}
	e := v.(*entry)
	e.mu.Lock()
	ws := e.approval.WorkspaceID
	e.mu.Unlock()
	if ws != workspaceID {
		m.log.WithFields(logging.Fields{"code": code, "workspace": workspaceID}).
			Warn("approval reply from a different workspace ignored")
		return res
	}

	res.Outcome = m.Resolve(code, approve)
	return res
}

// Sweep expires every pending code whose deadline is at or before now and
// drops resolved codes nobody collected within one timeout. It returns the
// number of codes expired by this call.
func (m *Manager) Sweep(now time.Time) int {
	expired := 0
	m.entries.Range(func(k, v any) bool {
		code := k.(string)
		e := v.(*entry)

		e.mu.Lock()
		resolved := e.resolvedLocked()
		due := !resolved && !now.Before(e.approval.ExpiresAt)
		stale := resolved && e.approval.ResolvedAt != nil && now.Sub(*e.approval.ResolvedAt) > m.timeout
		e.mu.Unlock()

		switch {
		case due:
			if _, ok := m.finish(code, e, StatusExpired, ReasonTimedOut); ok {
				expired++
			}
		case stale:
			m.entries.Delete(code)
		}
		return true
	})
	return expired
}

// Run sweeps every sweep interval until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(m.clock.Now()); n > 0 {
				m.log.WithField("expired", n).Debug("approval sweep")
			}
		}
	}
}

// Pending returns the codes still waiting for a human, oldest first.
func (m *Manager) Pending() []Approval {
	var out []Approval
	m.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.resolvedLocked() {
			out = append(out, e.approval)
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// Recover removes approvals left in the journal by a previous process and
// returns them resolved as denied. The caller audits them. Entries owned
// by another process that is still running are left alone.
func (m *Manager) Recover() ([]Approval, error) {
	if m.journal == nil {
		return nil, nil
	}
	orphans, err := m.journal.List()
	if err != nil {
		return nil, fmt.Errorf("read approval journal: %w", err)
	}

	now := m.clock.Now()
	out := make([]Approval, 0, len(orphans))
	for _, a := range orphans {
		if _, live := m.entries.Load(a.Code); live {
			continue
		}
		// another running gate process still waits on this code
		if a.OwnerPID != 0 && a.OwnerPID != m.pid && m.alive(a.OwnerPID) {
			continue
		}
		if err := m.journal.Remove(a.Code); err != nil {
			m.log.WithError(err).WithField("code", a.Code).Warn("approval journal cleanup failed")
		}
		a.Status = StatusDenied
		a.Resolution = ReasonRestarted
		a.ResolvedAt = &now
		out = append(out, a)
	}
	if len(out) > 0 {
		m.log.WithField("count", len(out)).Warn("denied approvals orphaned by restart")
	}
	return out, nil
}

// finish moves e to a terminal state exactly once. ok is false if another
// caller got there first.
func (m *Manager) finish(code string, e *entry, status Status, reason string) (Outcome, bool) {
	now := m.clock.Now()

	e.mu.Lock()
	if e.resolvedLocked() {
		e.mu.Unlock()
		return Outcome{}, false
	}
	e.approval.Status = status
	e.approval.Resolution = reason
	e.approval.ResolvedAt = &now
	e.outcome = Outcome{Code: code, Status: status, Reason: reason, ResolvedAt: now}
	out := e.outcome
	ws := e.approval.WorkspaceID
	close(e.done)
	e.mu.Unlock()

	if m.journal != nil {
		if err := m.journal.Remove(code); err != nil {
			m.log.WithError(err).WithField("code", code).Warn("approval journal cleanup failed")
		}
	}
	m.log.WithFields(logging.Fields{
		"code":      code,
		"workspace": ws,
		"status":    status,
		"reason":    reason,
	}).Info("approval resolved")
	return out, true
}

// FormatPrompt renders the message shown to a human for a.
func FormatPrompt(a Approval) string {
	return fmt.Sprintf(
		"Approval needed: %s\nWhy: %s\nReply \"approve %s\" or \"deny %s\" within %s (until %s). No reply means deny.",
		a.Summary, a.Reason, a.Code, a.Code,
		a.ExpiresAt.Sub(a.CreatedAt).Round(time.Second), a.ExpiresAt.UTC().Format("15:04:05 UTC"),
	)
}

// processAlive sends signal 0, which checks for existence without
// delivering anything. EPERM means the process exists under another user.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
