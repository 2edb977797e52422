package pynchygate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
services:
  inbox:
    public_source: risky
    secret_data: safe
    public_sink: safe
    dangerous_writes: safe
  passwords:
    public_source: safe
    secret_data: risky
    public_sink: safe
    dangerous_writes: safe
  slack:
    public_source: safe
    secret_data: safe
    public_sink: risky
    dangerous_writes: safe
  vault:
    dangerous_writes: forbidden
workspaces:
  capped:
    rate_limit:
      max_calls: 1
`

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	c, err := New(append([]Option{WithConfig(path)}, opts...)...)
	require.NoError(t, err, "failed to create client")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEvaluateCleanSessionAllowsSinkWrite(t *testing.T) {
	c := newTestClient(t)
	res := c.Evaluate(context.Background(), Action{Capability: "slack", Operation: "write", Payload: "hi"})
	assert.True(t, res.Allowed(), "%+v", res)
}

func TestEvaluateTrifectaNeedsHuman(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	c.Evaluate(ctx, Action{Capability: "inbox", Operation: "read"})
	c.Evaluate(ctx, Action{Capability: "passwords", Operation: "read"})

	res := c.Evaluate(ctx, Action{Capability: "slack", Operation: "write", Payload: "here are the passwords"})
	require.False(t, res.Allowed(), "deny without a human channel")
	assert.Equal(t, "human_approval", res.Decision)
}

func TestNewSessionStartsClean(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.Evaluate(ctx, Action{Capability: "inbox", Operation: "read"})
	c.Evaluate(ctx, Action{Capability: "passwords", Operation: "read"})

	fresh := c.NewSession()
	require.NotEqual(t, c.SessionID(), fresh.SessionID())
	res := fresh.Evaluate(ctx, Action{Capability: "slack", Operation: "write"})
	assert.True(t, res.Allowed(), "fresh session is untainted: %+v", res)
}

func TestCheckHasNoSideEffects(t *testing.T) {
	c := newTestClient(t, WithWorkspace("capped"))
	for i := 0; i < 3; i++ {
		d, err := c.Check(Action{Capability: "inbox", Operation: "read"})
		require.NoError(t, err)
		assert.Equal(t, "allow", d)
	}
	res := c.Evaluate(context.Background(), Action{Capability: "slack", Operation: "write"})
	assert.True(t, res.Allowed(), "first real call is within the limit: %+v", res)
}

func TestRateLimitedIsRetryable(t *testing.T) {
	c := newTestClient(t, WithWorkspace("capped"))
	ctx := context.Background()
	send := c.Wrap(func(context.Context, Action) (any, error) { return nil, nil }, WrapCapability("slack"), WrapOperation("write"))

	_, err := send(ctx, Action{})
	require.NoError(t, err)
	_, err = send(ctx, Action{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestServerUnreachableFailsClosed(t *testing.T) {
	c, err := New(WithServer("127.0.0.1:1"))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := c.Evaluate(ctx, Action{Capability: "inbox", Operation: "read"})
	assert.False(t, res.Allowed(), "deny when the server is unreachable")

	_, err = c.Check(Action{Capability: "inbox"})
	assert.Error(t, err, "Check needs an in-process client")
}

func TestAuditRecordsDecisions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "audit.db")
	c := newTestClient(t, WithAudit(db))
	c.Evaluate(context.Background(), Action{Capability: "vault", Operation: "read"})
	require.NoError(t, c.Close())

	fi, err := os.Stat(db)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())
}
