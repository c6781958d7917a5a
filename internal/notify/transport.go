// Package notify delivers best-effort "new lead" notifications to
// subscribers after a routing run. Delivery failures are tallied, never
// propagated: a lost notification costs a ping, not an assignment.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/model"
)

// Transport delivers a single notification.
type Transport interface {
	Send(ctx context.Context, req model.NotificationRequest) error
}

// WebhookTransport posts notifications as JSON to a subscriber-facing
// webhook endpoint.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport creates a webhook transport. A zero timeout defaults
// to 10 seconds.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *WebhookTransport) Send(ctx context.Context, req model.NotificationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "notify: post webhook")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return eris.New(fmt.Sprintf("notify: webhook returned %d", resp.StatusCode))
	}
	return nil
}

// NopTransport swallows notifications. Used when no webhook is configured
// and in tests.
type NopTransport struct{}

func (NopTransport) Send(ctx context.Context, req model.NotificationRequest) error {
	return nil
}
