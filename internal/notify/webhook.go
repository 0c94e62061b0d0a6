package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender posts messages as JSON to a push provider endpoint.
type WebhookSender struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewWebhookSender(endpoint, key string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &WebhookSender{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: timeout}}
}

func (w *WebhookSender) Send(ctx context.Context, m Message) error {
	b, err := json.Marshal(map[string]any{"message": m})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Key != "" {
		req.Header.Set("Authorization", "Bearer "+w.Key)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", w.Endpoint, resp.StatusCode)
	}
	return nil
}
