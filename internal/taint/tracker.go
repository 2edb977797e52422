// Package taint tracks per-session security flags.
//
// Both flags are monotonic: once set they stay set until the session ends.
// Nothing in this package can clear a flag on a live session.
package taint

import (
	"sync"
	"sync/atomic"

	"github.com/crypdick/pynchy-gate/internal/model"
)

// Resolver maps a capability name to its trust declaration.
type Resolver interface {
	Resolve(name string) model.TrustDeclaration
}

type settings struct {
	resolver Resolver
	secret   map[string]bool
}

type session struct {
	mu          sync.Mutex
	workspace   string
	corruption  bool
	secretTaint bool
}

// Tracker owns the taint state of every live session.
type Tracker struct {
	cfg      atomic.Pointer[settings]
	sessions sync.Map // session id → *session
}

// NewTracker creates a Tracker. Sessions operating in any of the given
// secret workspaces are secret-tainted from their start.
func NewTracker(r Resolver, secretWorkspaces []string) *Tracker {
	t := &Tracker{}
	t.Configure(r, secretWorkspaces)
	return t
}

// Configure swaps the resolver and the secret-workspace set. Existing
// session flags are untouched.
func (t *Tracker) Configure(r Resolver, secretWorkspaces []string) {
	secret := make(map[string]bool, len(secretWorkspaces))
	for _, ws := range secretWorkspaces {
		secret[ws] = true
	}
	t.cfg.Store(&settings{resolver: r, secret: secret})
}

// Start registers a session. Acting in a secret workspace secret-taints the
// session, whichever workspace it started in; otherwise starting an
// existing session is a no-op.
func (t *Tracker) Start(sessionID, workspace string) model.TaintSnapshot {
	s := t.get(sessionID, workspace)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.enterLocked(s, workspace)
	return snapshotLocked(s)
}

// RecordRead resolves the capability and records a read of it.
func (t *Tracker) RecordRead(sessionID, workspace, capability string) model.TaintSnapshot {
	cfg := t.cfg.Load()
	d := model.CautiousDeclaration()
	if cfg != nil && cfg.resolver != nil {
		d = cfg.resolver.Resolve(capability)
	}
	return t.RecordDeclaredRead(sessionID, workspace, d)
}

// RecordDeclaredRead records a read of a capability whose declaration the
// caller already resolved. It returns the flags after the update.
func (t *Tracker) RecordDeclaredRead(sessionID, workspace string, d model.TrustDeclaration) model.TaintSnapshot {
	s := t.get(sessionID, workspace)
	s.mu.Lock()
	defer s.mu.Unlock()

	t.enterLocked(s, workspace)
	if d.PublicSource == model.Risky {
		s.corruption = true
	}
	if d.SecretData == model.Risky || t.isSecret(s.workspace) {
		s.secretTaint = true
	}
	return snapshotLocked(s)
}

// enterLocked applies the secret flag of the workspace an action runs in.
func (t *Tracker) enterLocked(s *session, workspace string) {
	if t.isSecret(workspace) {
		s.secretTaint = true
	}
}

// Snapshot returns the session's flags. Unknown sessions are untainted.
func (t *Tracker) Snapshot(sessionID string) model.TaintSnapshot {
	v, ok := t.sessions.Load(sessionID)
	if !ok {
		return model.TaintSnapshot{}
	}
	s := v.(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotLocked(s)
}

// End drops the session. A later use of the same id starts untainted.
func (t *Tracker) End(sessionID string) {
	t.sessions.Delete(sessionID)
}

// Len returns the number of live sessions.
func (t *Tracker) Len() int {
	n := 0
	t.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (t *Tracker) get(sessionID, workspace string) *session {
	if v, ok := t.sessions.Load(sessionID); ok {
		return v.(*session)
	}
	fresh := &session{workspace: workspace}
	fresh.secretTaint = t.isSecret(workspace)
	actual, _ := t.sessions.LoadOrStore(sessionID, fresh)
	return actual.(*session)
}

func (t *Tracker) isSecret(workspace string) bool {
	cfg := t.cfg.Load()
	return cfg != nil && cfg.secret[workspace]
}

func snapshotLocked(s *session) model.TaintSnapshot {
	return model.TaintSnapshot{CorruptionTainted: s.corruption, SecretTainted: s.secretTaint}
}
