// Package slack posts pipeline failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/target/dataio-go/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL   string
	Channel      string
	Username     string
	Timeout      time.Duration
	RetryLimit   int
	Client       *http.Client
	JobURLPrefix string
}

// Client delivers failure notifications to a Slack webhook.
type Client struct {
	hook         notify.Webhook
	channel      string
	username     string
	jobURLPrefix string
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	hc := cfg.Client
	if hc == nil {
		hc = notify.NewHTTPClient(cfg.Timeout)
	}
	return &Client{
		hook: notify.Webhook{
			Name:       "slack",
			URL:        webhookURL,
			RetryLimit: max(cfg.RetryLimit, 0),
			Client:     hc,
		},
		channel:      strings.TrimSpace(cfg.Channel),
		username:     notify.Fallback(strings.TrimSpace(cfg.Username), "dataio"),
		jobURLPrefix: strings.TrimRight(strings.TrimSpace(cfg.JobURLPrefix), "/"),
	}, nil
}

// SendFailure posts a formatted message to Slack.
func (c *Client) SendFailure(ctx context.Context, payload notify.FailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return c.hook.Post(ctx, body)
}

func (c *Client) formatMessage(payload notify.FailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var text strings.Builder
	fmt.Fprintf(&text, ":rotating_light: *Pipeline failure* in %s: %s\n",
		notify.Fallback(payload.Stage, "unknown stage"), c.subject(payload))
	writeField(&text, "Severity", notify.Fallback(payload.Severity, notify.SeverityCritical))
	writeField(&text, "Job kind", payload.JobKind)
	writeField(&text, "Queue", payload.Queue)
	writeField(&text, "Payload", payload.PayloadType)
	writeField(&text, "Message", payload.MessageID)
	writeField(&text, "Error class", payload.ErrorClass)
	if payload.Error != "" {
		fmt.Fprintf(&text, "*Error:* ```%s```\n", payload.Error)
	}
	writeMetadata(&text, payload.Metadata)
	fmt.Fprintf(&text, "_%s_", timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// subject links the job when a URL prefix is configured.
func (c *Client) subject(payload notify.FailurePayload) string {
	subject := payload.Subject()
	if c.jobURLPrefix == "" || payload.JobID <= 0 {
		return "`" + subject + "`"
	}
	link, err := url.JoinPath(c.jobURLPrefix, strconv.FormatInt(payload.JobID, 10))
	if err != nil {
		return "`" + subject + "`"
	}
	return fmt.Sprintf("<%s|%s>", link, subject)
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "*%s:* %s\n", label, value)
}

func writeMetadata(b *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("*Details:*\n")
	for _, k := range keys {
		fmt.Fprintf(b, "• %s: %s\n", k, metadata[k])
	}
}
