package channel

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event PromptEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event PromptEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event PromptEvent) ([]byte, error) {
	payload := map[string]any{
		"text": event.Text,
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("pynchy: approval needed in %s", event.WorkspaceID),
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": event.Text},
			},
		},
	}
	return json.Marshal(payload)
}
