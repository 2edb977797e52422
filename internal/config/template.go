package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultYAML is the commented template written by init-config.
const DefaultYAML = `# pynchy-gate configuration
server:
  listen: 127.0.0.1:7433

# Trust declarations. Each attribute is safe, risky or forbidden.
# Omitted attributes, and undeclared capabilities, are risky.
services:
  calendar:
    public_source: safe
    secret_data: safe
    public_sink: safe
    dangerous_writes: safe
  inbox:
    public_source: risky
    secret_data: safe
    public_sink: safe
    dangerous_writes: safe
  vault:
    secret_data: risky
    dangerous_writes: forbidden

# Sessions in a secret workspace start secret-tainted.
workspaces:
  main:
    secret: false
  # finance:
  #   secret: true
  #   rate_limit:
  #     max_calls: 50
  #     per_tool:
  #       slack: 10

# Default sliding-window limit. max_calls: 0 means unlimited.
rate_limit:
  window: 1h
  max_calls: 0

approval:
  timeout: 5m
  sweep_interval: 5s
  # journal_dir: ~/.pynchy/approvals

shell:
  capability: bash
  mode: fire_and_forget
  extra_safe: []
  extra_network: []

# kind: none | openai
reviewer:
  kind: none
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  timeout: 20s

channels:
  log: true
  # webhook:
  #   url: https://hooks.slack.com/services/...
  #   format: slack
  # mqtt:
  #   broker: localhost
  #   port: 1883

audit:
  # path: ~/.pynchy/audit.db
  retention: 2160h
  prune_schedule: "@daily"
`

// WriteDefault writes DefaultYAML to path. An existing file is left alone
// unless force is set.
func WriteDefault(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(DefaultYAML), 0o600)
}
