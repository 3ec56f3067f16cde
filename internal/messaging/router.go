package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// Message is a validated envelope unwrapped for a handler.
type Message struct {
	ID      string
	Headers Headers
	Body    json.RawMessage
	Attempt int
}

// Handler processes one message. A nil error acknowledges it; any other error
// causes redelivery unless it wraps ErrFatal.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// ErrFatal marks a handler error that redelivery cannot fix.
var ErrFatal = errors.New("fatal message error")

// Fatal wraps err so the router dead-letters the message instead of redelivering it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// Disposition tells the consumer how to settle a delivery.
type Disposition int

const (
	// Ack removes the message; handled successfully.
	Ack Disposition = iota
	// Drop removes a malformed message without handling it.
	Drop
	// Retry returns the message to the queue for redelivery.
	Retry
	// DeadLetter parks the message for operators.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// FatalHook observes deliveries the router dead-letters.
type FatalHook func(ctx context.Context, d *Delivery, err error)

// RouterOptions configures a Router.
type RouterOptions struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
	OnFatal FatalHook
}

type routeKey struct {
	payloadType PayloadType
	resource    string
}

// Router validates deliveries and dispatches them by payload type and optional resource.
type Router struct {
	routes  map[routeKey]Handler
	logger  *slog.Logger
	metrics statsd.Sink
	onFatal FatalHook
}

// NewRouter creates an empty router.
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		routes:  make(map[routeKey]Handler),
		logger:  logger.With("component", "message_router"),
		metrics: opts.Metrics,
		onFatal: opts.OnFatal,
	}
}

// Register routes every message of payload type pt to h.
func (r *Router) Register(pt PayloadType, h Handler) {
	r.routes[routeKey{payloadType: pt}] = h
}

// RegisterResource routes messages of payload type pt whose resource header equals resource to h.
// Resource routes take precedence over the payload-type route.
func (r *Router) RegisterResource(pt PayloadType, resource string, h Handler) {
	r.routes[routeKey{payloadType: pt, resource: resource}] = h
}

func (r *Router) lookup(h Headers) Handler {
	if handler, ok := r.routes[routeKey{payloadType: h.PayloadType, resource: h.Resource}]; ok {
		return handler
	}
	return r.routes[routeKey{payloadType: h.PayloadType}]
}

// Route validates d and hands it to its handler. Malformed deliveries are dropped
// before any handler runs.
func (r *Router) Route(ctx context.Context, d *Delivery) (Disposition, error) {
	if d == nil {
		r.count("messaging.malformed", nil)
		r.logger.WarnContext(ctx, "dropping malformed message", "reason", "nil delivery")
		return Drop, malformed("nil delivery")
	}
	env := d.Envelope
	if err := Validate(env); err != nil {
		if !errors.Is(err, ErrMalformed) {
			return Retry, err
		}
		r.dropMalformed(ctx, d, err)
		return Drop, err
	}

	handler := r.lookup(env.Headers)
	if handler == nil {
		err := malformed("no handler for %s/%s", env.Headers.PayloadType, env.Headers.Resource)
		r.dropMalformed(ctx, d, err)
		return Drop, err
	}

	msg := &Message{ID: env.ID, Headers: env.Headers, Body: env.Body, Attempt: d.Attempt}
	tags := map[string]string{"payload_type": string(env.Headers.PayloadType)}
	if d.Attempt > 1 {
		r.count("messaging.redelivered", tags)
	}

	err := handler.Handle(ctx, msg)
	switch {
	case err == nil:
		r.count("messaging.handled", tags)
		return Ack, nil
	case errors.Is(err, ErrMalformed):
		r.dropMalformed(ctx, d, err)
		return Drop, err
	case errors.Is(err, ErrFatal):
		r.logger.ErrorContext(ctx, "message handling failed fatally",
			"message_id", env.ID,
			"payload_type", env.Headers.PayloadType,
			"resource", env.Headers.Resource,
			"error", err,
		)
		r.count("messaging.fatal", tags)
		if r.onFatal != nil {
			r.onFatal(ctx, d, err)
		}
		return DeadLetter, err
	default:
		r.logger.WarnContext(ctx, "message handling failed, will be redelivered",
			"message_id", env.ID,
			"payload_type", env.Headers.PayloadType,
			"attempt", d.Attempt,
			"error", err,
		)
		r.count("messaging.handler_error", tags)
		return Retry, err
	}
}

func (r *Router) dropMalformed(ctx context.Context, d *Delivery, err error) {
	attrs := []any{"queue", d.Queue, "attempt", d.Attempt, "error", err}
	if d.Envelope != nil {
		attrs = append(attrs, "message_id", d.Envelope.ID, "payload_type", d.Envelope.Headers.PayloadType)
	} else if len(d.Raw) > 0 {
		attrs = append(attrs, "raw_bytes", len(d.Raw))
	}
	r.logger.WarnContext(ctx, "dropping malformed message", attrs...)
	r.count("messaging.malformed", map[string]string{"queue": d.Queue})
}

func (r *Router) count(name string, tags map[string]string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Count(name, 1, metrics.CloneTags(tags))
}
