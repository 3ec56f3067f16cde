// Package redis provides the Redis Streams message transport.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/target/dataio-go/internal/messaging"
)

const (
	defaultLeaseDuration = 5 * time.Minute
	defaultRetryDelay    = 5 * time.Second
	defaultMaxDeliveries = 10

	envelopeField  = "envelope"
	maxErrorLength = 2000
)

// StreamTransportOptions configures a StreamTransport.
type StreamTransportOptions struct {
	Client redis.UniversalClient // Required

	// Prefix namespaces stream keys: {prefix}:{queue} and {prefix}:{queue}:dead.
	Prefix string
	// Group is the consumer group shared by all workers of a queue.
	Group string
	// Consumer names this process within the group. Defaults to hostname plus a random suffix.
	Consumer string

	LeaseDuration time.Duration
	RetryDelay    time.Duration
	MaxDeliveries int

	Logger *slog.Logger
}

// StreamTransport is a messaging.Transport on Redis Streams. Each queue is a stream read
// through one consumer group. Unacked entries whose idle time passes the lease are
// claimed by the next Receive on any consumer.
type StreamTransport struct {
	client        redis.UniversalClient
	prefix        string
	group         string
	consumer      string
	lease         time.Duration
	retryDelay    time.Duration
	maxDeliveries int
	logger        *slog.Logger

	groups sync.Map // stream key -> struct{}
}

var _ messaging.Transport = (*StreamTransport)(nil)

// NewStreamTransport creates a Redis Streams transport.
func NewStreamTransport(opts StreamTransportOptions) (*StreamTransport, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	t := &StreamTransport{
		client:        opts.Client,
		prefix:        strings.TrimSuffix(strings.TrimSpace(opts.Prefix), ":"),
		group:         strings.TrimSpace(opts.Group),
		consumer:      strings.TrimSpace(opts.Consumer),
		lease:         opts.LeaseDuration,
		retryDelay:    opts.RetryDelay,
		maxDeliveries: opts.MaxDeliveries,
		logger:        opts.Logger,
	}
	if t.prefix == "" {
		t.prefix = "dataio"
	}
	if t.group == "" {
		t.group = "dataio"
	}
	if t.consumer == "" {
		t.consumer = defaultConsumerName()
	}
	if t.lease <= 0 {
		t.lease = defaultLeaseDuration
	}
	if t.retryDelay < 0 {
		t.retryDelay = 0
	} else if t.retryDelay == 0 {
		t.retryDelay = defaultRetryDelay
	}
	if t.maxDeliveries <= 0 {
		t.maxDeliveries = defaultMaxDeliveries
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "redis_stream_transport", "consumer", t.consumer)
	return t, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dataio"
	}
	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
}

func (t *StreamTransport) streamKey(queue string) string { return t.prefix + ":" + queue }

func (t *StreamTransport) deadKey(queue string) string { return t.prefix + ":" + queue + ":dead" }

// ensureGroup creates the consumer group, and the stream with it, once per process.
func (t *StreamTransport) ensureGroup(ctx context.Context, stream string) error {
	if _, ok := t.groups.Load(stream); ok {
		return nil
	}
	err := t.client.XGroupCreateMkStream(ctx, stream, t.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", t.group, stream, err)
	}
	t.groups.Store(stream, struct{}{})
	return nil
}

func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

// Publish appends env to the queue's stream.
func (t *StreamTransport) Publish(ctx context.Context, queue string, env *messaging.Envelope) error {
	if env == nil {
		return errors.New("envelope is required")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamKey(queue),
		Values: map[string]any{envelopeField: raw},
	}).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Receive returns an expired-lease entry if one exists, otherwise the next new entry.
// Entries delivered more than MaxDeliveries times are dead-lettered instead of returned.
func (t *StreamTransport) Receive(ctx context.Context, queue string) (*messaging.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := t.streamKey(queue)
	if err := t.ensureGroup(ctx, stream); err != nil {
		return nil, err
	}

	for {
		d, err := t.receiveOnce(ctx, queue, stream)
		if isNoGroup(err) {
			// The stream was deleted under us; recreate the group and retry.
			t.groups.Delete(stream)
			if err := t.ensureGroup(ctx, stream); err != nil {
				return nil, err
			}
			d, err = t.receiveOnce(ctx, queue, stream)
		}
		if err != nil {
			return nil, err
		}
		if d.Attempt <= t.maxDeliveries {
			return d, nil
		}
		t.logger.WarnContext(ctx, "message exceeded max deliveries",
			"queue", queue,
			"receipt", d.Receipt,
			"attempts", d.Attempt,
		)
		if err := t.DeadLetter(ctx, d, fmt.Errorf("exceeded %d deliveries", t.maxDeliveries)); err != nil {
			return nil, err
		}
	}
}

func (t *StreamTransport) receiveOnce(ctx context.Context, queue, stream string) (*messaging.Delivery, error) {
	d, err := t.claimExpired(ctx, queue, stream)
	if err != nil || d != nil {
		return d, err
	}
	return t.readNew(ctx, queue, stream)
}

func (t *StreamTransport) claimExpired(ctx context.Context, queue, stream string) (*messaging.Delivery, error) {
	for {
		msgs, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    t.group,
			Consumer: t.consumer,
			MinIdle:  t.lease,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("claim expired on %s: %w", stream, err)
		}
		if len(msgs) == 0 {
			return nil, nil
		}
		msg := msgs[0]
		raw, ok := envelopeBytes(msg)
		if !ok {
			// Trimmed or foreign entry; drop it from the pending list.
			if err := t.forget(ctx, stream, msg.ID); err != nil {
				return nil, err
			}
			continue
		}
		attempts, err := t.deliveryCount(ctx, stream, msg.ID)
		if err != nil {
			return nil, err
		}
		t.logger.DebugContext(ctx, "claimed message with expired lease", "queue", queue, "receipt", msg.ID, "attempts", attempts)
		return newDelivery(queue, msg.ID, raw, attempts), nil
	}
}

func (t *StreamTransport) readNew(ctx context.Context, queue, stream string) (*messaging.Delivery, error) {
	res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.group,
		Consumer: t.consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, messaging.ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", stream, err)
	}
	for _, s := range res {
		for _, msg := range s.Messages {
			raw, _ := envelopeBytes(msg)
			return newDelivery(queue, msg.ID, raw, 1), nil
		}
	}
	return nil, messaging.ErrNoMessage
}

func (t *StreamTransport) deliveryCount(ctx context.Context, stream, id string) (int, error) {
	pending, err := t.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  t.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("pending info for %s %s: %w", stream, id, err)
	}
	if len(pending) == 0 {
		return 1, nil
	}
	return int(pending[0].RetryCount), nil
}

func envelopeBytes(msg redis.XMessage) ([]byte, bool) {
	switch v := msg.Values[envelopeField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

func newDelivery(queue, id string, raw []byte, attempts int) *messaging.Delivery {
	return &messaging.Delivery{
		Envelope: messaging.DecodeEnvelope(raw),
		Raw:      raw,
		Queue:    queue,
		Attempt:  attempts,
		Receipt:  id,
	}
}

func checkDelivery(d *messaging.Delivery) error {
	if d == nil {
		return errors.New("delivery is required")
	}
	if d.Receipt == "" || d.Queue == "" {
		return errors.New("delivery has no receipt")
	}
	return nil
}

func (t *StreamTransport) forget(ctx context.Context, stream, id string) error {
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, stream, t.group, id)
		p.XDel(ctx, stream, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s %s: %w", stream, id, err)
	}
	return nil
}

// Ack acknowledges and deletes the entry.
func (t *StreamTransport) Ack(ctx context.Context, d *messaging.Delivery) error {
	if err := checkDelivery(d); err != nil {
		return err
	}
	return t.forget(ctx, t.streamKey(d.Queue), d.Receipt)
}

// Nack leaves the entry pending and rewinds its idle time so it is claimed again
// once RetryDelay has passed.
func (t *StreamTransport) Nack(ctx context.Context, d *messaging.Delivery, cause error) error {
	if err := checkDelivery(d); err != nil {
		return err
	}
	idle := t.lease - t.retryDelay
	if idle < 0 {
		idle = 0
	}
	// JUSTID keeps the delivery counter unchanged.
	err := t.client.Do(ctx, "XCLAIM", t.streamKey(d.Queue), t.group, t.consumer, 0, d.Receipt,
		"IDLE", idle.Milliseconds(), "JUSTID").Err()
	if err != nil {
		return fmt.Errorf("nack %s %s: %w", d.Queue, d.Receipt, err)
	}
	t.logger.DebugContext(ctx, "message nacked", "queue", d.Queue, "receipt", d.Receipt, "error", errorText(cause))
	return nil
}

// DeadLetter moves the entry to the queue's dead-letter stream.
func (t *StreamTransport) DeadLetter(ctx context.Context, d *messaging.Delivery, cause error) error {
	if err := checkDelivery(d); err != nil {
		return err
	}
	stream := t.streamKey(d.Queue)
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: t.deadKey(d.Queue),
			Values: map[string]any{
				envelopeField: d.Raw,
				"receipt":     d.Receipt,
				"attempts":    d.Attempt,
				"reason":      errorText(cause),
			},
		})
		p.XAck(ctx, stream, t.group, d.Receipt)
		p.XDel(ctx, stream, d.Receipt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s %s: %w", d.Queue, d.Receipt, err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > maxErrorLength {
		s = s[:maxErrorLength]
	}
	return s
}

// DeadLetter is a parked message as stored in a dead-letter stream.
type DeadLetter struct {
	ID       string
	Receipt  string
	Attempts int
	Reason   string
	Raw      []byte
}

// DeadLetters returns up to limit dead-lettered messages of queue, newest first.
func (t *StreamTransport) DeadLetters(ctx context.Context, queue string, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	msgs, err := t.client.XRevRangeN(ctx, t.deadKey(queue), "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters of %s: %w", queue, err)
	}
	out := make([]DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		raw, _ := envelopeBytes(msg)
		dl := DeadLetter{ID: msg.ID, Raw: raw}
		if v, ok := msg.Values["receipt"].(string); ok {
			dl.Receipt = v
		}
		if v, ok := msg.Values["reason"].(string); ok {
			dl.Reason = v
		}
		if v, ok := msg.Values["attempts"].(string); ok {
			dl.Attempts, _ = strconv.Atoi(v)
		}
		out = append(out, dl)
	}
	return out, nil
}

// PurgeDeadLetters trims entries parked before cutoff from every queue's dead-letter
// stream. Stream ids carry their insertion time, so MINID trimming is exact.
func (t *StreamTransport) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	minID := strconv.FormatInt(cutoff.UnixMilli(), 10) + "-0"
	var total int64
	for _, queue := range messaging.AllQueues() {
		n, err := t.client.XTrimMinID(ctx, t.deadKey(queue), minID).Result()
		if err != nil {
			return total, fmt.Errorf("purge dead letters of %s: %w", queue, err)
		}
		total += n
	}
	return total, nil
}

// StreamStats counts entries of one queue.
type StreamStats struct {
	Length  int64 `json:"length"`
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

// Stats returns entry counts for queue.
func (t *StreamTransport) Stats(ctx context.Context, queue string) (StreamStats, error) {
	var s StreamStats
	var err error
	if s.Length, err = t.client.XLen(ctx, t.streamKey(queue)).Result(); err != nil {
		return s, fmt.Errorf("length of %s: %w", queue, err)
	}
	pending, err := t.client.XPending(ctx, t.streamKey(queue), t.group).Result()
	switch {
	case err == nil:
		s.Pending = pending.Count
	case isNoGroup(err), errors.Is(err, redis.Nil):
	default:
		return s, fmt.Errorf("pending of %s: %w", queue, err)
	}
	if s.Dead, err = t.client.XLen(ctx, t.deadKey(queue)).Result(); err != nil {
		return s, fmt.Errorf("dead letters of %s: %w", queue, err)
	}
	return s, nil
}
