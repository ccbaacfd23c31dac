package wishlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/curhatin/companion/internal/domain"
)

const defaultForwardTimeout = 15 * time.Second

// WebhookForwarder posts signups to a spreadsheet webhook.
type WebhookForwarder struct {
	url    string
	client *http.Client
}

// NewWebhookForwarder creates a forwarder for url. An empty url yields a
// forwarder that reports itself unconfigured.
func NewWebhookForwarder(url string, client *http.Client) *WebhookForwarder {
	if client == nil {
		client = &http.Client{Timeout: defaultForwardTimeout}
	}
	return &WebhookForwarder{url: strings.TrimSpace(url), client: client}
}

// Configured reports whether a webhook url is set.
func (f *WebhookForwarder) Configured() bool {
	return f.url != ""
}

type webhookPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Forward delivers one signup.
func (f *WebhookForwarder) Forward(ctx context.Context, e *domain.WishlistEntry) error {
	if !f.Configured() {
		return ErrWebhookNotConfigured
	}

	buf, err := json.Marshal(webhookPayload{Name: e.Name, Email: e.Email})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
