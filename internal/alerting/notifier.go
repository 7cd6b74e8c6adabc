// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/logging"
)

// Notifier delivers alerts to an external channel.
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Enabled reports whether the channel should receive deliveries.
	Enabled() bool

	// MinPriority is the channel's priority floor. Alerts below it stay
	// on the passive dashboard surface and never reach this channel.
	MinPriority() Priority

	// Send delivers one alert. Implementations must honor ctx.
	Send(ctx context.Context, alert *Alert) error
}

// LogNotifier writes alerts to the structured log. Always enabled; it is
// the floor delivery channel when nothing else is configured.
type LogNotifier struct{}

// Name returns the channel name.
func (LogNotifier) Name() string { return "log" }

// Enabled always reports true.
func (LogNotifier) Enabled() bool { return true }

// MinPriority admits high and critical alerts; the rest stay on the
// dashboard surface.
func (LogNotifier) MinPriority() Priority { return PriorityHigh }

// Send logs the alert at a level matching its priority.
func (LogNotifier) Send(_ context.Context, alert *Alert) error {
	evt := logging.Warn()
	if alert.Priority == PriorityCritical {
		evt = logging.Error()
	}
	evt.
		Str("alert_id", alert.ID).
		Str("type", string(alert.Type)).
		Str("priority", alert.Priority.String()).
		Str("fingerprint", alert.Fingerprint).
		Str("case_id", alert.CaseID).
		Float64("score", alert.Score).
		Msg(alert.Title)
	return nil
}

// WebhookNotifier posts alerts to a generic webhook endpoint.
type WebhookNotifier struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool
	minPrio Priority
	client  *http.Client
}

// WebhookOptions configures the webhook notifier.
type WebhookOptions struct {
	URL     string
	Headers map[string]string
	Enabled bool
	Timeout time.Duration

	// MinPriority is the channel floor. The zero value (info) admits
	// every priority; production configs default to critical.
	MinPriority Priority
}

// webhookPayload is the JSON body posted to the endpoint.
type webhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewWebhookNotifier creates the notifier.
func NewWebhookNotifier(opts WebhookOptions) *WebhookNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &WebhookNotifier{
		url:     opts.URL,
		headers: headers,
		enabled: opts.Enabled,
		minPrio: opts.MinPriority,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the channel name.
func (n *WebhookNotifier) Name() string { return "webhook" }

// MinPriority returns the configured channel floor.
func (n *WebhookNotifier) MinPriority() Priority {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.minPrio
}

// Enabled reports whether the channel is active and configured.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled enables or disables the channel.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetURL updates the endpoint.
func (n *WebhookNotifier) SetURL(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.url = url
}

// Send posts the alert to the endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	n.mu.RLock()
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	enabled := n.enabled
	n.mu.RUnlock()

	if !enabled || url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Alert:     alert,
		EventType: "threat_alert",
		Timestamp: time.Now().UTC(),
		Source:    "caseguard",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
