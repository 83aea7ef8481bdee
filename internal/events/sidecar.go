package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SidecarPublisher publishes envelopes through a pub/sub sidecar's
// HTTP API (POST {base}/v1.0/publish/{component}/{topic}). The sidecar
// provides at-least-once delivery back to the consumer endpoints; no
// stronger guarantee is assumed.
type SidecarPublisher struct {
	baseURL   string
	component string
	client    *http.Client
	logger    *slog.Logger
}

// NewSidecarPublisher creates a publisher targeting the sidecar at
// baseURL using the named pub/sub component.
func NewSidecarPublisher(baseURL, component string, logger *slog.Logger) *SidecarPublisher {
	return &SidecarPublisher{
		baseURL:   baseURL,
		component: component,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With("component", "sidecar_publisher"),
	}
}

// Publish posts the envelope to the sidecar. Any non-2xx response is
// an error; callers decide whether a publish failure is fatal (it is
// not for database-first writes).
func (p *SidecarPublisher) Publish(ctx context.Context, topic string, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	url := fmt.Sprintf("%s/v1.0/publish/%s/%s", p.baseURL, p.component, topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publish to %s returned status %d", topic, resp.StatusCode)
	}

	p.logger.Debug("published event",
		"topic", topic,
		"event_id", env.EventID,
		"event_type", env.EventType)
	return nil
}

// Ensure SidecarPublisher implements Publisher
var _ Publisher = (*SidecarPublisher)(nil)
