// Package config loads the gate configuration from YAML.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crypdick/pynchy-gate/internal/approval"
	"github.com/crypdick/pynchy-gate/internal/audit"
	"github.com/crypdick/pynchy-gate/internal/channel"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/ratelimit"
	"github.com/crypdick/pynchy-gate/internal/review"
	"github.com/crypdick/pynchy-gate/internal/trust"
)

// DefaultListen is the default gRPC listen address.
const DefaultListen = "127.0.0.1:7433"

// DefaultRetention is how long audit records are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Service is the trust declaration of one capability. Omitted attributes
// are risky.
type Service struct {
	PublicSource    string `yaml:"public_source"    validate:"omitempty,oneof=safe risky forbidden"`
	SecretData      string `yaml:"secret_data"      validate:"omitempty,oneof=safe risky forbidden"`
	PublicSink      string `yaml:"public_sink"      validate:"omitempty,oneof=safe risky forbidden"`
	DangerousWrites string `yaml:"dangerous_writes" validate:"omitempty,oneof=safe risky forbidden"`
}

// Declaration converts the service to a normalized trust declaration.
func (s Service) Declaration() model.TrustDeclaration {
	return model.TrustDeclaration{
		PublicSource:    model.ParseTrustLevel(s.PublicSource),
		SecretData:      model.ParseTrustLevel(s.SecretData),
		PublicSink:      model.ParseTrustLevel(s.PublicSink),
		DangerousWrites: model.ParseTrustLevel(s.DangerousWrites),
	}
}

// Limit caps calls per window. Zero means unlimited.
type Limit struct {
	MaxCalls int            `yaml:"max_calls" validate:"gte=0"`
	PerTool  map[string]int `yaml:"per_tool"  validate:"dive,keys,required,endkeys,gte=0"`
}

func (l Limit) toWorkspaceLimit() ratelimit.WorkspaceLimit {
	w := ratelimit.WorkspaceLimit{MaxCalls: l.MaxCalls}
	if len(l.PerTool) > 0 {
		w.PerTool = make(map[string]int, len(l.PerTool))
		// capability names are case-insensitive everywhere else
		for tool, n := range l.PerTool {
			w.PerTool[strings.ToLower(strings.TrimSpace(tool))] = n
		}
	}
	return w
}

// Workspace holds per-workspace settings.
type Workspace struct {
	Secret    bool   `yaml:"secret"`
	RateLimit *Limit `yaml:"rate_limit"`
}

// RateLimitConfig is the default limit plus the window width.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window" validate:"gte=0"`
	Limit  `yaml:",inline"`
}

type ApprovalConfig struct {
	Timeout       time.Duration `yaml:"timeout"        validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	JournalDir    string        `yaml:"journal_dir"`
}

type ShellConfig struct {
	Capability   string   `yaml:"capability"    validate:"required"`
	ExtraSafe    []string `yaml:"extra_safe"`
	ExtraNetwork []string `yaml:"extra_network"`
	Mode         string   `yaml:"mode"          validate:"oneof=fire_and_forget request_reply"`
}

type ReviewerConfig struct {
	Kind      string        `yaml:"kind"        validate:"oneof=none openai"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"    validate:"omitempty,url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"     validate:"gte=0"`
}

type ChannelsConfig struct {
	Log     bool                   `yaml:"log"`
	Webhook *channel.WebhookConfig `yaml:"webhook"`
	MQTT    *channel.MQTTConfig    `yaml:"mqtt"`
}

type AuditConfig struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"      validate:"gte=0"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

// Config is the whole gate configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Services   map[string]Service   `yaml:"services"   validate:"dive,keys,required,endkeys"`
	Workspaces map[string]Workspace `yaml:"workspaces" validate:"dive,keys,required,endkeys"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
	Approval   ApprovalConfig       `yaml:"approval"`
	Shell      ShellConfig          `yaml:"shell"`
	Reviewer   ReviewerConfig       `yaml:"reviewer"`
	Channels   ChannelsConfig       `yaml:"channels"`
	Audit      AuditConfig          `yaml:"audit"`
}

// Default returns the built-in configuration: no declared services, no
// rate limits, log-only human channel, no reviewer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: DefaultListen},
		RateLimit: RateLimitConfig{
			Window: ratelimit.DefaultWindow,
		},
		Approval: ApprovalConfig{
			Timeout:       approval.DefaultTimeout,
			SweepInterval: approval.DefaultSweepInterval,
		},
		Shell: ShellConfig{
			Capability: "bash",
			Mode:       string(model.FireAndForget),
		},
		Reviewer: ReviewerConfig{
			Kind:      "none",
			Model:     review.DefaultModel,
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   review.DefaultTimeout,
		},
		Channels: ChannelsConfig{Log: true},
		Audit: AuditConfig{
			Retention:     DefaultRetention,
			PruneSchedule: audit.DefaultPruneSchedule,
		},
	}
}

// DefaultPath returns ~/.pynchy/gate.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pynchy", "gate.yaml")
}

// Load reads the configuration at path.
// Empty path falls back to DefaultPath. A missing file returns defaults.
// Invalid YAML or a failed validation returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash is Load plus the SHA-256 of the raw file bytes. When no file
// exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, Hash(data), nil
}

// Parse overlays YAML onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Hash returns "sha256:<hex>" of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Registry builds the trust registry from the services section.
func (c *Config) Registry() *trust.Registry {
	decls := make(map[string]model.TrustDeclaration, len(c.Services))
	for name, s := range c.Services {
		decls[name] = s.Declaration()
	}
	return trust.NewRegistry(decls)
}

// SecretWorkspaces returns the names of workspaces marked secret, sorted.
func (c *Config) SecretWorkspaces() []string {
	var out []string
	for name, ws := range c.Workspaces {
		if ws.Secret {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Limits converts the rate-limit sections into limiter configuration.
func (c *Config) Limits() ratelimit.Limits {
	l := ratelimit.Limits{
		Window:  c.RateLimit.Window,
		Default: c.RateLimit.Limit.toWorkspaceLimit(),
	}
	for name, ws := range c.Workspaces {
		if ws.RateLimit == nil {
			continue
		}
		if l.Workspaces == nil {
			l.Workspaces = make(map[string]ratelimit.WorkspaceLimit)
		}
		l.Workspaces[name] = ws.RateLimit.toWorkspaceLimit()
	}
	return l
}

// ShellMode is the action mode applied to shell commands.
func (c *Config) ShellMode() model.ActionMode {
	return model.ParseMode(c.Shell.Mode, model.FireAndForget)
}

// ShellDeclaration returns the declaration of the shell capability when it
// is explicitly listed under services.
func (c *Config) ShellDeclaration() (model.TrustDeclaration, bool) {
	return c.Registry().Lookup(c.Shell.Capability)
}
