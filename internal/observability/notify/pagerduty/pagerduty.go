// Package pagerduty raises pipeline failure incidents through the Events API v2.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/dataio-go/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	hook       notify.Webhook
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	hc := cfg.Client
	if hc == nil {
		hc = notify.NewHTTPClient(cfg.Timeout)
	}
	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "dataio"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "dataio"),
		hook: notify.Webhook{
			Name:       "pagerduty",
			URL:        notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
			RetryLimit: max(cfg.RetryLimit, 0),
			Client:     hc,
		},
	}, nil
}

// SendFailure submits a trigger event to PagerDuty.
func (c *Client) SendFailure(ctx context.Context, payload notify.FailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return c.hook.Post(ctx, body)
}

// dedupKey groups repeated failures of the same unit of work into one incident.
func dedupKey(payload notify.FailurePayload) string {
	parts := []string{notify.Fallback(payload.Stage, "dataio")}
	switch {
	case payload.JobID > 0:
		parts = append(parts, strings.ReplaceAll(payload.Subject(), " ", "-"))
	case payload.MessageID != "":
		parts = append(parts, payload.Queue, payload.MessageID)
	default:
		parts = append(parts, payload.Subject())
	}
	return strings.Join(parts, ":")
}

func (c *Client) buildEvent(payload notify.FailurePayload) map[string]any {
	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"stage":        payload.Stage,
		"queue":        payload.Queue,
		"payload_type": payload.PayloadType,
		"message_id":   payload.MessageID,
		"error":        payload.Error,
		"error_class":  payload.ErrorClass,
	}
	if payload.JobID > 0 {
		custom["job_id"] = payload.JobID
	}
	if payload.ChunkID != nil {
		custom["chunk_id"] = *payload.ChunkID
	}
	if payload.Harvester != "" {
		custom["harvester"] = payload.Harvester
	}
	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey(payload),
		"payload": map[string]any{
			"summary": fmt.Sprintf("dataio %s failed: %s",
				notify.Fallback(payload.Stage, "pipeline"), payload.Subject()),
			"severity":       notify.Fallback(strings.ToLower(payload.Severity), notify.SeverityCritical),
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
