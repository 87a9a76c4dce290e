package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TransportError is a failed webhook delivery.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("webhook delivery failed (status=%d)", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DiscordWebhook posts messages to a Discord-compatible webhook URL.
// Discord answers 204 on success; anything under 300 is accepted.
type DiscordWebhook struct {
	url string
	hc  *http.Client
}

func NewDiscordWebhook(url string) *DiscordWebhook {
	return &DiscordWebhook{
		url: url,
		hc:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *DiscordWebhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")

	res, err := w.hc.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return &TransportError{Status: res.StatusCode}
	}
	return nil
}
