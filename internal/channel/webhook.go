package channel

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

// retryBackoff is the base delay between attempts.
var retryBackoff = time.Second

// WebhookConfig defines a webhook prompt destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"     validate:"required,url"`
	Format  string            `yaml:"format"  json:"format"  validate:"omitempty,oneof=generic slack"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// WebhookChannel posts prompts to an HTTP endpoint.
type WebhookChannel struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a WebhookChannel.
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	return &WebhookChannel{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

// Name implements HumanChannel.
func (c *WebhookChannel) Name() string { return "webhook" }

// SendPrompt posts the prompt with retry on 5xx and transport errors.
// 4xx responses are not retried.
func (c *WebhookChannel) SendPrompt(ctx context.Context, workspaceID, text string) error {
	body, err := FormatPayload(c.cfg.Format, newPromptEvent(workspaceID, text))
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		// 5xx: retry
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}
