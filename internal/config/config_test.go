package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypdick/pynchy-gate/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, Hash(nil), hash)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
services:
  inbox:
    public_source: risky
    secret_data: safe
approval:
  timeout: 2m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Approval.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Approval.SweepInterval, "unspecified fields keep defaults")
	assert.Equal(t, "bash", cfg.Shell.Capability)

	d := cfg.Registry().Resolve("inbox")
	assert.Equal(t, model.Risky, d.PublicSource)
	assert.Equal(t, model.Safe, d.SecretData)
	assert.Equal(t, model.Risky, d.PublicSink, "omitted attribute is risky")
}

func TestLoadHashChangesWithContent(t *testing.T) {
	_, h1, err := LoadWithHash(writeConfig(t, "shell:\n  capability: bash\n"))
	require.NoError(t, err)
	_, h2, err := LoadWithHash(writeConfig(t, "shell:\n  capability: sh\n"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "services: [",
		"bad trust level": "services:\n  x:\n    public_sink: trusted\n",
		"negative limit":  "rate_limit:\n  max_calls: -1\n",
		"negative tool":   "workspaces:\n  main:\n    rate_limit:\n      per_tool:\n        slack: -2\n",
		"bad mode":        "shell:\n  mode: sometimes\n",
		"bad reviewer":    "reviewer:\n  kind: claude\n",
		"zero timeout":    "approval:\n  timeout: 0s\n",
		"bad schedule":    "audit:\n  prune_schedule: every tuesday\n",
		"bad webhook":     "channels:\n  webhook:\n    url: not a url\n",
		"bad listen":      "server:\n  listen: nowhere\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLimitsConversion(t *testing.T) {
	cfg, err := Parse([]byte(`
rate_limit:
  window: 30m
  max_calls: 100
workspaces:
  main:
    secret: true
    rate_limit:
      max_calls: 3
      per_tool:
        Slack: 1
  ops: {}
`))
	require.NoError(t, err)

	l := cfg.Limits()
	assert.Equal(t, 30*time.Minute, l.Window)
	assert.Equal(t, 100, l.Default.MaxCalls)
	assert.Equal(t, 3, l.For("main").MaxCalls)
	assert.Equal(t, 1, l.For("main").PerTool["slack"], "per_tool keys are lowercased")
	assert.Equal(t, 100, l.For("ops").MaxCalls, "workspace without rate_limit uses default")

	assert.Equal(t, []string{"main"}, cfg.SecretWorkspaces())
}

func TestShellSettings(t *testing.T) {
	cfg, err := Parse([]byte("shell:\n  capability: sh\n  mode: request_reply\nservices:\n  sh:\n    dangerous_writes: forbidden\n"))
	require.NoError(t, err)
	assert.Equal(t, model.RequestReply, cfg.ShellMode())
	d, ok := cfg.ShellDeclaration()
	assert.True(t, ok)
	assert.Equal(t, model.Forbidden, d.DangerousWrites)
}

func TestDefaultYAMLIsValid(t *testing.T) {
	cfg, err := Parse([]byte(DefaultYAML))
	require.NoError(t, err)
	assert.Equal(t, model.Forbidden, cfg.Registry().Resolve("vault").DangerousWrites)
	assert.Equal(t, DefaultRetention, cfg.Audit.Retention)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "gate.yaml")
	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false))
	assert.NoError(t, WriteDefault(path, true))

	_, err := Load(path)
	assert.NoError(t, err)
}
