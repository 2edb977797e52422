package cli

import (
	"fmt"

	"github.com/crypdick/pynchy-gate/internal/client"
	"github.com/crypdick/pynchy-gate/internal/config"
)

var serverAddr string

// dial connects to the gate server named by --addr, falling back to the
// listen address of the loaded config.
func dial() (*client.Client, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.Server.Listen
	}
	c, err := client.New(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to gate server at %s: %w", addr, err)
	}
	return c, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
