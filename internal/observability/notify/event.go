// Package notify defines pipeline failure notifications and the webhook plumbing shared by its sinks.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// FailurePayload describes a failure that redelivery will not fix, typically a message
// parked on the dead-letter path.
type FailurePayload struct {
	Stage       string
	MessageID   string
	PayloadType string
	Queue       string
	JobID       int64
	ChunkID     *int
	JobKind     string
	Harvester   string
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Subject names what failed, most specific first.
func (p FailurePayload) Subject() string {
	switch {
	case p.JobID > 0 && p.ChunkID != nil:
		return fmt.Sprintf("job %d chunk %d", p.JobID, *p.ChunkID)
	case p.JobID > 0:
		return fmt.Sprintf("job %d", p.JobID)
	case p.Harvester != "":
		return "harvester " + p.Harvester
	case p.MessageID != "":
		return "message " + p.MessageID
	default:
		return "unknown"
	}
}

// Sink describes a destination capable of consuming failure notifications.
type Sink interface {
	SendFailure(ctx context.Context, payload FailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload FailurePayload) error

// SendFailure implements the Sink interface.
func (f SinkFunc) SendFailure(ctx context.Context, payload FailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
