package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type webhookPayload struct {
	MsgType   string      `json:"msgtype"`
	Text      webhookText `json:"text"`
	Recipient string      `json:"recipient,omitempty"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookTransport posts notifications to a DingTalk/WeCom-compatible webhook endpoint.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook transport.
type WebhookOption func(*WebhookTransport)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *WebhookTransport) {
		if client != nil {
			w.client = client
		}
	}
}

// NewWebhookTransport constructs a webhook transport.
func NewWebhookTransport(url string, opts ...WebhookOption) (*WebhookTransport, error) {
	if url == "" {
		return nil, errors.New("webhook transport: empty url")
	}
	w := &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Send posts the body. Network failures, 429 and 5xx are transient; other non-2xx are permanent.
func (w *WebhookTransport) Send(ctx context.Context, recipient, body string) (Ack, error) {
	if w == nil || w.url == "" {
		return Ack{}, PermanentError(errors.New("webhook transport: empty url"))
	}
	raw, err := json.Marshal(webhookPayload{
		MsgType:   "text",
		Text:      webhookText{Content: body},
		Recipient: recipient,
	})
	if err != nil {
		return Ack{}, PermanentError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return Ack{}, PermanentError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return Ack{}, TransientError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode < 300:
		return Ack{MessageID: resp.Header.Get("X-Request-Id")}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Ack{}, TransientError(fmt.Errorf("webhook transport: response %d", resp.StatusCode))
	default:
		return Ack{}, PermanentError(fmt.Errorf("webhook transport: response %d", resp.StatusCode))
	}
}
