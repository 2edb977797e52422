package channel

import (
	"context"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

// LogChannel writes prompts to the log. Operators answer them with the CLI.
type LogChannel struct {
	log *logging.Entry
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(log *logging.Entry) *LogChannel {
	return &LogChannel{log: logging.OrDiscard(log)}
}

// Name implements HumanChannel.
func (c *LogChannel) Name() string { return "log" }

// SendPrompt implements HumanChannel. It never fails.
func (c *LogChannel) SendPrompt(_ context.Context, workspaceID, text string) error {
	c.log.WithField("workspace", workspaceID).Warn(text)
	return nil
}
