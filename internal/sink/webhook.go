package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ridgelink/sensormesh/internal/config"
)

// Webhook POSTs each report as JSON to an HTTP endpoint.
type Webhook struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook output.
func NewWebhook(cfg config.SinkConfig) (*Webhook, error) {
	url, ok := cfg.Options["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("webhook sink requires a url")
	}

	method := http.MethodPost
	if m, ok := cfg.Options["method"].(string); ok && m != "" {
		method = m
	}

	timeout := 10 * time.Second
	if t, ok := cfg.Options["timeout"].(string); ok {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	headers := map[string]string{}
	if h, ok := cfg.Options["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	return &Webhook{
		url:     url,
		method:  method,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Send delivers one record.
func (w *Webhook) Send(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequest(w.method, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for webhooks.
func (w *Webhook) Close() error { return nil }

// Name returns the output identifier.
func (w *Webhook) Name() string { return fmt.Sprintf("webhook:%s", w.url) }
