package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// Delivery headers.
const (
	HeaderEventType = "X-Dpp-Event-Type"
	HeaderWebhookID = "X-Dpp-Webhook-Id"
	HeaderEventID   = "X-Dpp-Event-Id"
	HeaderSignature = "X-Hub-Signature-256"
)

// WebhookPublisher delivers events to registered webhooks. Each request is
// signed with HMAC-SHA256 using the webhook's own secret. Non-2xx responses
// are errors, so the outbox dispatcher can retry.
type WebhookPublisher struct {
	client *http.Client
}

// NewWebhookPublisher returns a publisher whose requests time out after
// timeout. A zero or negative timeout falls back to defaultWebhookTimeout.
func NewWebhookPublisher(timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{client: &http.Client{Timeout: timeout}}
}

// Deliver POSTs event as JSON to hook.URL with these headers:
//
//	Content-Type:           application/json
//	X-Dpp-Event-Type:       <event.EventType>
//	X-Dpp-Event-Id:         <event.EventID>
//	X-Dpp-Webhook-Id:       <hook.ID>
//	X-Hub-Signature-256:    sha256=<hex-encoded HMAC-SHA256 of the body>
func (p *WebhookPublisher) Deliver(ctx context.Context, hook domain.Webhook, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderWebhookID, hook.ID)
	req.Header.Set(HeaderSignature, "sha256="+Sign([]byte(hook.Secret), payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the lowercase hex-encoded HMAC-SHA256 of payload.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
