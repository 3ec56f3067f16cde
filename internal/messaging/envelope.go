// Package messaging implements the validated envelope protocol used between pipeline stages,
// the payload-type router, and the at-least-once consumer loop on top of a Transport.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the transport content kind of an envelope.
type Kind string

// KindJSON is the only kind stages accept.
const KindJSON Kind = "application/json"

// PayloadType names the body schema and selects the handler.
type PayloadType string

const (
	PayloadNewJob          PayloadType = "NewJob"
	PayloadChunk           PayloadType = "Chunk"
	PayloadChunkResult     PayloadType = "ChunkResult"
	PayloadSinkChunkResult PayloadType = "SinkChunkResult"
)

// Known reports whether t is a recognized payload type.
func (t PayloadType) Known() bool {
	switch t {
	case PayloadNewJob, PayloadChunk, PayloadChunkResult, PayloadSinkChunkResult:
		return true
	default:
		return false
	}
}

// Queue names used by the transports. Each payload type has a single destination queue.
const (
	QueuePartitioning = "partitioning"
	QueueProcessing   = "processing"
	QueueDelivering   = "delivering"
	QueueDelivered    = "delivered"
)

// AllQueues lists every queue in pipeline order.
func AllQueues() []string {
	return []string{QueuePartitioning, QueueProcessing, QueueDelivering, QueueDelivered}
}

// QueueFor returns the queue a payload type is published to.
func QueueFor(t PayloadType) (string, error) {
	switch t {
	case PayloadNewJob:
		return QueuePartitioning, nil
	case PayloadChunk:
		return QueueProcessing, nil
	case PayloadChunkResult:
		return QueueDelivering, nil
	case PayloadSinkChunkResult:
		return QueueDelivered, nil
	default:
		return "", fmt.Errorf("no queue for payload type %q", t)
	}
}

// Headers route a message to a handler and, for sinks, to a resource.
type Headers struct {
	Source      string      `json:"source"`
	PayloadType PayloadType `json:"payloadType"`
	Resource    string      `json:"resource"`
}

// Envelope is the unit carried by a Transport.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Headers   Headers         `json:"headers"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEnvelope marshals body and wraps it with fresh id and headers.
func NewEnvelope(headers Headers, body any) (*Envelope, error) {
	if !headers.PayloadType.Known() {
		return nil, fmt.Errorf("unknown payload type %q", headers.PayloadType)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", headers.PayloadType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Kind:      KindJSON,
		Headers:   headers,
		Body:      raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Delivery is an envelope handed out by a Transport together with its receipt.
type Delivery struct {
	Envelope *Envelope
	// Raw is the undecoded transport payload, kept for logging malformed messages.
	Raw []byte
	// Queue the delivery was received from.
	Queue string
	// Attempt counts deliveries of this message, starting at 1.
	Attempt int
	// Receipt is transport specific (row id, stream entry id).
	Receipt string
}

// DecodeEnvelope parses a wire-encoded envelope. A parse failure yields a nil envelope,
// which Validate classifies as malformed.
func DecodeEnvelope(raw []byte) *Envelope {
	if len(raw) == 0 {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return &env
}

// ErrNoMessage is returned by Transport.Receive when the queue is empty.
var ErrNoMessage = errors.New("no message available")
