package pynchygate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crypdick/pynchy-gate/internal/audit"
	"github.com/crypdick/pynchy-gate/internal/client"
	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/policy"
)

type evaluator interface {
	Evaluate(ctx context.Context, a model.Action) model.PolicyResult
}

type engineEvaluator struct{ engine *policy.Engine }

func (e engineEvaluator) Evaluate(ctx context.Context, a model.Action) model.PolicyResult {
	return e.engine.Evaluate(ctx, a)
}

// Client evaluates actions for one agent session. Safe for concurrent use.
//
// In-process clients have no human channel: actions that need a human
// approval are denied. Point the client at a server with WithServer to get
// approvals.
type Client struct {
	eval      evaluator
	engine    *policy.Engine // nil for server-backed clients
	remote    *client.Client
	store     *audit.Store
	workspace string
	session   string
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{workspace: "default"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.session == "" {
		cfg.session = uuid.NewString()
	}

	c := &Client{workspace: cfg.workspace, session: cfg.session}

	if cfg.addr != "" {
		rc, err := client.New(cfg.addr)
		if err != nil {
			return nil, fmt.Errorf("pynchy-gate: %w", err)
		}
		c.remote = rc
		c.eval = rc
		return c, nil
	}

	gateCfg, hash, err := config.LoadWithHash(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("pynchy-gate: failed to load config: %w", err)
	}

	opt := policy.Options{Snapshot: policy.NewSnapshot(gateCfg, hash)}
	if cfg.auditPath != "" {
		c.store, err = audit.Open(cfg.auditPath)
		if err != nil {
			return nil, fmt.Errorf("pynchy-gate: %w", err)
		}
		opt.Audit = c.store
	}
	c.engine = policy.New(opt)
	c.eval = engineEvaluator{c.engine}
	return c, nil
}

// SessionID returns the session actions are attributed to.
func (c *Client) SessionID() string {
	return c.session
}

// NewSession returns a client sharing this one's backend with a fresh,
// untainted session.
func (c *Client) NewSession() *Client {
	n := *c
	n.session = uuid.NewString()
	return &n
}

// Evaluate asks the gate about one action. Reads it allows taint the
// session. Server-backed clients fail closed when the server is down.
func (c *Client) Evaluate(ctx context.Context, a Action) Result {
	return toResult(c.eval.Evaluate(ctx, toModelAction(a, c.workspace, c.session)))
}

// Check reports the gate decision for an action without any side effects.
// It is only available in-process.
func (c *Client) Check(a Action) (string, error) {
	if c.engine == nil {
		return "", fmt.Errorf("pynchy-gate: Check needs an in-process client")
	}
	v := c.engine.Check(toModelAction(a, c.workspace, c.session))
	return string(v.Decision), nil
}

// Close releases the server connection or audit database.
func (c *Client) Close() error {
	if c.remote != nil {
		return c.remote.Close()
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
