// Package channel delivers approval prompts to humans and carries their
// replies back to the gate.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HumanChannel sends an approval prompt to the humans of a workspace.
type HumanChannel interface {
	Name() string
	SendPrompt(ctx context.Context, workspaceID, text string) error
}

// ReplyHandler receives a human message addressed to a workspace.
type ReplyHandler func(workspaceID, text string)

// PromptEvent is the payload published by the webhook and MQTT channels.
type PromptEvent struct {
	Timestamp   string `json:"timestamp"`
	WorkspaceID string `json:"workspace_id"`
	Text        string `json:"text"`
}

func newPromptEvent(workspaceID, text string) PromptEvent {
	return PromptEvent{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		WorkspaceID: workspaceID,
		Text:        text,
	}
}

// Multi fans a prompt out to every channel. Delivery succeeds if at least
// one channel accepted the prompt.
type Multi []HumanChannel

// Name implements HumanChannel.
func (m Multi) Name() string { return "multi" }

// SendPrompt implements HumanChannel.
func (m Multi) SendPrompt(ctx context.Context, workspaceID, text string) error {
	if len(m) == 0 {
		return errors.New("no human channel configured")
	}
	var errs []error
	delivered := false
	for _, ch := range m {
		if err := ch.SendPrompt(ctx, workspaceID, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}
