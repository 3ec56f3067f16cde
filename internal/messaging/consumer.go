package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

// Transport moves envelopes between stages with at-least-once semantics: a received
// message stays invisible to other consumers until it is acked, nacked, dead-lettered,
// or its lease expires.
type Transport interface {
	Publish(ctx context.Context, queue string, env *Envelope) error
	// Receive returns the next delivery or ErrNoMessage.
	Receive(ctx context.Context, queue string) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Nack(ctx context.Context, d *Delivery, cause error) error
	DeadLetter(ctx context.Context, d *Delivery, cause error) error
}

// Waiter is implemented by transports that can block until a queue may have work.
type Waiter interface {
	WaitForMessage(ctx context.Context, queue string) error
}

// Publish wraps body in an envelope and publishes it to the payload type's queue.
func Publish(ctx context.Context, t Transport, headers Headers, body any) (*Envelope, error) {
	env, err := NewEnvelope(headers, body)
	if err != nil {
		return nil, err
	}
	queue, err := QueueFor(headers.PayloadType)
	if err != nil {
		return nil, err
	}
	if err := t.Publish(ctx, queue, env); err != nil {
		return nil, fmt.Errorf("publish %s: %w", headers.PayloadType, err)
	}
	return env, nil
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Transport    Transport
	Queue        string
	Router       *Router
	Concurrency  int           // worker goroutines; defaults to 1
	PollInterval time.Duration // idle wait when the transport cannot block; defaults to 1s
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// Consumer runs a bounded pool of workers that receive from one queue and settle
// each delivery according to the router's disposition.
type Consumer struct {
	transport    Transport
	queue        string
	router       *Router
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewConsumer validates options and builds a Consumer.
func NewConsumer(opts ConsumerOptions) (*Consumer, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Router == nil {
		return nil, errors.New("router is required")
	}
	if opts.Queue == "" {
		return nil, errors.New("queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Consumer{
		transport:    opts.Transport,
		queue:        opts.Queue,
		router:       opts.Router,
		workers:      workers,
		pollInterval: poll,
		logger:       logger.With("component", "consumer", "queue", opts.Queue),
		metrics:      opts.Metrics,
	}, nil
}

// Run blocks until ctx is canceled or a worker hits a transport error.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "starting consumer", "workers", c.workers)

	group, gctx := errgroup.WithContext(ctx)
	for range c.workers {
		group.Go(func() error { return c.workerLoop(gctx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		d, err := c.transport.Receive(ctx, c.queue)
		switch {
		case err == nil:
			if settleErr := c.Process(ctx, d); settleErr != nil {
				return settleErr
			}
		case errors.Is(err, ErrNoMessage):
			c.idle(ctx)
		case ctx.Err() != nil:
			return nil
		default:
			c.logger.ErrorContext(ctx, "receive failed", "error", err)
			return fmt.Errorf("receive from %s: %w", c.queue, err)
		}
	}
	return nil
}

func (c *Consumer) idle(ctx context.Context) {
	if w, ok := c.transport.(Waiter); ok {
		waitCtx, cancel := context.WithTimeout(ctx, c.pollInterval*5)
		defer cancel()
		if err := w.WaitForMessage(waitCtx, c.queue); err == nil || ctx.Err() != nil {
			return
		}
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.pollInterval):
	}
}

// Process routes one delivery and settles it. Only transport failures are returned.
func (c *Consumer) Process(ctx context.Context, d *Delivery) error {
	start := time.Now()
	disposition, handleErr := c.router.Route(ctx, d)

	var err error
	switch disposition {
	case Ack, Drop:
		err = c.transport.Ack(ctx, d)
	case Retry:
		err = c.transport.Nack(ctx, d, handleErr)
	case DeadLetter:
		err = c.transport.DeadLetter(ctx, d, handleErr)
	}

	if c.metrics != nil {
		tags := map[string]string{"queue": c.queue, "disposition": disposition.String()}
		c.metrics.Timing("messaging.settle", time.Since(start), tags)
	}
	if err != nil {
		return fmt.Errorf("settle %s delivery: %w", disposition, err)
	}
	return nil
}
