package policy

import (
	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/ratelimit"
	"github.com/crypdick/pynchy-gate/internal/trust"
)

// Snapshot is the reloadable part of the engine's configuration. A
// Snapshot is never mutated once handed to the engine.
type Snapshot struct {
	Registry         *trust.Registry
	SecretWorkspaces []string
	Limits           ratelimit.Limits
	Classifier       *bashgate.Classifier
	ShellCapability  string
	ShellMode        model.ActionMode
	ConfigHash       string

	secret map[string]bool
}

// NewSnapshot builds a Snapshot from a loaded configuration.
func NewSnapshot(cfg *config.Config, hash string) *Snapshot {
	return &Snapshot{
		Registry:         cfg.Registry(),
		SecretWorkspaces: cfg.SecretWorkspaces(),
		Limits:           cfg.Limits(),
		Classifier: bashgate.New(bashgate.Options{
			ExtraSafe:    cfg.Shell.ExtraSafe,
			ExtraNetwork: cfg.Shell.ExtraNetwork,
		}),
		ShellCapability: cfg.Shell.Capability,
		ShellMode:       cfg.ShellMode(),
		ConfigHash:      hash,
	}
}

func (s *Snapshot) fill() *Snapshot {
	c := *s
	if c.Classifier == nil {
		c.Classifier = bashgate.New(bashgate.Options{})
	}
	if c.ShellCapability == "" {
		c.ShellCapability = "bash"
	}
	if c.ShellMode == "" {
		c.ShellMode = model.FireAndForget
	}
	c.secret = make(map[string]bool, len(c.SecretWorkspaces))
	for _, ws := range c.SecretWorkspaces {
		c.secret[ws] = true
	}
	return &c
}

func (s *Snapshot) isShell(capability string) bool {
	return trustName(capability) == trustName(s.ShellCapability)
}
