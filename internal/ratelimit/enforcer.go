// Package ratelimit caps how many actions a workspace may run per
// sliding window, regardless of what the actions call.
package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Allowed bool
	Tool    string
	Current int
	Limit   int
	Reason  string
	RuleID  string
}

// Usage is a workspace's call count inside the current window.
type Usage struct {
	Total   int            `json:"total"`
	PerTool map[string]int `json:"per_tool"`
}

// Limiter enforces Limits. Each workspace's window has its own lock.
type Limiter struct {
	limits  atomic.Pointer[Limits]
	windows sync.Map // workspace → *window
	now     func() time.Time
}

// NewLimiter creates a Limiter for the given limits.
func NewLimiter(l Limits) *Limiter {
	lim := &Limiter{now: time.Now}
	lim.Configure(l)
	return lim
}

// Configure swaps the limits. Recorded history is kept.
func (l *Limiter) Configure(limits Limits) {
	l.limits.Store(&limits)
}

// Limits returns the active limits.
func (l *Limiter) Limits() Limits {
	return *l.limits.Load()
}

// CheckAndRecord admits or rejects one call. An admitted call is recorded
// against the workspace total and the tool; a rejected call is not.
func (l *Limiter) CheckAndRecord(workspace, tool string) CheckResult {
	return l.CheckAndRecordAt(workspace, tool, l.now())
}

// CheckAndRecordAt is CheckAndRecord with an explicit clock reading.
func (l *Limiter) CheckAndRecordAt(workspace, tool string, now time.Time) CheckResult {
	limits := l.limits.Load()
	wl := limits.For(workspace)
	if !wl.HasLimits() {
		return CheckResult{Allowed: true}
	}
	span := limits.window()

	w := l.window(workspace)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now.Add(-span))

	if wl.MaxCalls > 0 {
		if n := w.all.count(); n >= wl.MaxCalls {
			return CheckResult{
				Current: n,
				Limit:   wl.MaxCalls,
				Reason: fmt.Sprintf("rate limit exceeded: %d/%d calls in %s window for workspace %s",
					n, wl.MaxCalls, span, workspace),
				RuleID: fmt.Sprintf("ratelimit.%s.exceeded", label(workspace)),
			}
		}
	}
	if limit := wl.PerTool[tool]; limit > 0 {
		if n := w.toolLocked(tool).count(); n >= limit {
			return CheckResult{
				Tool:    tool,
				Current: n,
				Limit:   limit,
				Reason: fmt.Sprintf("rate limit exceeded: %d/%d %s calls in %s window for workspace %s",
					n, limit, tool, span, workspace),
				RuleID: fmt.Sprintf("ratelimit.%s.%s_exceeded", label(workspace), tool),
			}
		}
	}

	w.all.add(now)
	w.toolLocked(tool).add(now)
	return CheckResult{Allowed: true, Tool: tool}
}

// Usage reports the workspace's counts inside the current window.
func (l *Limiter) Usage(workspace string) Usage {
	u := Usage{PerTool: map[string]int{}}
	v, ok := l.windows.Load(workspace)
	if !ok {
		return u
	}
	w := v.(*window)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(l.now().Add(-l.limits.Load().window()))
	u.Total = w.all.count()
	for name, s := range w.tools {
		u.PerTool[name] = s.count()
	}
	return u
}

// Reset clears a workspace's history.
func (l *Limiter) Reset(workspace string) {
	l.windows.Delete(workspace)
}

func (l *Limiter) window(workspace string) *window {
	if v, ok := l.windows.Load(workspace); ok {
		return v.(*window)
	}
	v, _ := l.windows.LoadOrStore(workspace, newWindow())
	return v.(*window)
}

func label(workspace string) string {
	if workspace == "" {
		return "global"
	}
	return workspace
}
