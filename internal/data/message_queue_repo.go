package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/dataio-go/internal/data/pgxutil"
	"github.com/target/dataio-go/internal/messaging"
)

const (
	defaultLeaseDuration = 5 * time.Minute
	defaultRetryDelay    = 5 * time.Second
	defaultMaxDeliveries = 10

	// Advisory lock namespace for requeueExpired, separate per queue.
	advisoryLockRequeueMajor int64 = 2001

	maxErrorLength = 2000
)

// MessageQueueConfig configures the Postgres transport.
type MessageQueueConfig struct {
	RepoConfig
	// LeaseDuration is how long a received message stays invisible before it is redelivered.
	LeaseDuration time.Duration
	// RetryDelay postpones redelivery after a Nack.
	RetryDelay time.Duration
	// MaxDeliveries moves a message to dead_messages when it is received more often.
	MaxDeliveries int
}

// MessageQueueRepo is a messaging.Transport backed by the messages table.
type MessageQueueRepo struct {
	repoBase
	lease         time.Duration
	retryDelay    time.Duration
	maxDeliveries int
}

var (
	_ messaging.Transport = (*MessageQueueRepo)(nil)
	_ messaging.Waiter    = (*MessageQueueRepo)(nil)
)

// NewMessageQueueRepo creates a Postgres transport.
func NewMessageQueueRepo(db *sql.DB, cfg MessageQueueConfig) *MessageQueueRepo {
	r := &MessageQueueRepo{
		repoBase:      newRepoBase(db, cfg.RepoConfig, "message_queue"),
		lease:         cfg.LeaseDuration,
		retryDelay:    cfg.RetryDelay,
		maxDeliveries: cfg.MaxDeliveries,
	}
	if r.lease <= 0 {
		r.lease = defaultLeaseDuration
	}
	if r.retryDelay < 0 {
		r.retryDelay = 0
	} else if r.retryDelay == 0 {
		r.retryDelay = defaultRetryDelay
	}
	if r.maxDeliveries <= 0 {
		r.maxDeliveries = defaultMaxDeliveries
	}
	return r
}

func notifyChannel(queue string) string {
	return "dataio_queue_" + queue
}

// Publish stores env on queue and notifies listeners.
func (r *MessageQueueRepo) Publish(ctx context.Context, queue string, env *messaging.Envelope) error {
	if env == nil {
		return errors.New("envelope is required")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	now := r.timeProvider.Now()
	_, err = r.DB.ExecContext(ctx, `
		WITH ins AS (
		  INSERT INTO messages (queue, message_id, payload, visible_at, created_at)
		  VALUES ($1, $2, $3, $4, $4)
		  RETURNING id
		)
		SELECT pg_notify($5::text, ins.id::text) FROM ins`,
		queue, env.ID, payload, now, notifyChannel(queue))
	if err != nil {
		return mapErr(err, "publish to %s", queue)
	}
	return nil
}

const reserveMessageSQL = `
	WITH cte AS (
	  SELECT id FROM messages
	  WHERE queue = $1 AND lease_expires_at IS NULL AND visible_at <= $2
	  ORDER BY visible_at, id
	  LIMIT 1
	  FOR UPDATE SKIP LOCKED
	)
	UPDATE messages m
	SET lease_expires_at = $3, attempts = m.attempts + 1
	FROM cte
	WHERE m.id = cte.id
	RETURNING m.id, m.payload, m.attempts`

// Receive leases the oldest visible message of queue. Messages received more than
// MaxDeliveries times are dead-lettered instead of returned.
func (r *MessageQueueRepo) Receive(ctx context.Context, queue string) (*messaging.Delivery, error) {
	if _, err := r.requeueExpired(ctx, queue); err != nil {
		return nil, fmt.Errorf("requeue expired messages: %w", err)
	}

	for {
		d, err := r.reserve(ctx, queue)
		if err != nil {
			return nil, err
		}
		if d.Attempt <= r.maxDeliveries {
			return d, nil
		}
		r.logger.WarnContext(ctx, "message exceeded max deliveries",
			"queue", queue,
			"receipt", d.Receipt,
			"attempts", d.Attempt,
		)
		if err := r.DeadLetter(ctx, d, fmt.Errorf("exceeded %d deliveries", r.maxDeliveries)); err != nil {
			return nil, err
		}
	}
}

func (r *MessageQueueRepo) reserve(ctx context.Context, queue string) (*messaging.Delivery, error) {
	var d *messaging.Delivery
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			var (
				id       int64
				payload  []byte
				attempts int
			)
			err := tx.QueryRow(ctx, reserveMessageSQL, queue, now, now.Add(r.lease)).Scan(&id, &payload, &attempts)
			if errors.Is(err, pgx.ErrNoRows) {
				return messaging.ErrNoMessage
			}
			if err != nil {
				return fmt.Errorf("reserve message: %w", err)
			}
			d = &messaging.Delivery{
				Envelope: messaging.DecodeEnvelope(payload),
				Raw:      payload,
				Queue:    queue,
				Attempt:  attempts,
				Receipt:  strconv.FormatInt(id, 10),
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func advisoryLockRequeueMinor(queue string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(queue))
	return int64(h.Sum32() & math.MaxInt32)
}

// requeueExpired returns messages whose lease ran out to the queue. One caller per queue
// does the work; concurrent callers skip.
func (r *MessageQueueRepo) requeueExpired(ctx context.Context, queue string) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor(queue)).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE messages
				SET lease_expires_at = NULL, last_error = 'lease expired'
				WHERE queue = $1 AND lease_expires_at IS NOT NULL AND lease_expires_at < $2`,
				queue, r.timeProvider.Now())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			rowsAffected, err = res.RowsAffected()
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	if rowsAffected > 0 {
		r.logger.InfoContext(ctx, "requeued messages with expired leases", "queue", queue, "count", rowsAffected)
	}
	return rowsAffected, nil
}

func receiptID(d *messaging.Delivery) (int64, error) {
	if d == nil {
		return 0, errors.New("delivery is required")
	}
	id, err := strconv.ParseInt(d.Receipt, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid receipt %q: %w", d.Receipt, err)
	}
	return id, nil
}

// Ack deletes the message.
func (r *MessageQueueRepo) Ack(ctx context.Context, d *messaging.Delivery) error {
	id, err := receiptID(d)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return mapErr(err, "ack message %d", id)
	}
	return nil
}

// Nack releases the lease and makes the message visible again after RetryDelay.
func (r *MessageQueueRepo) Nack(ctx context.Context, d *messaging.Delivery, cause error) error {
	id, err := receiptID(d)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		UPDATE messages
		SET lease_expires_at = NULL, visible_at = $2, last_error = $3
		WHERE id = $1`, id, r.timeProvider.Now().Add(r.retryDelay), errorText(cause))
	if err != nil {
		return mapErr(err, "nack message %d", id)
	}
	return nil
}

// DeadLetter moves the message to dead_messages.
func (r *MessageQueueRepo) DeadLetter(ctx context.Context, d *messaging.Delivery, cause error) error {
	id, err := receiptID(d)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		WITH moved AS (
		  DELETE FROM messages WHERE id = $1
		  RETURNING id, queue, message_id, payload, attempts, created_at
		)
		INSERT INTO dead_messages (id, queue, message_id, payload, attempts, reason, created_at, dead_at)
		SELECT id, queue, message_id, payload, attempts, $2, created_at, $3 FROM moved
		ON CONFLICT (id) DO NOTHING`, id, errorText(cause), r.timeProvider.Now())
	if err != nil {
		return mapErr(err, "dead-letter message %d", id)
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

// WaitForMessage blocks until a message is published to queue or ctx ends.
func (r *MessageQueueRepo) WaitForMessage(ctx context.Context, queue string) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	channel := notifyChannel(queue)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		//nolint:contextcheck // UNLISTEN must run after ctx is done.
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// QueueStats counts messages of one queue.
type QueueStats struct {
	Ready  int64 `json:"ready"`
	Leased int64 `json:"leased"`
	Dead   int64 `json:"dead"`
}

// Stats returns message counts for queue.
func (r *MessageQueueRepo) Stats(ctx context.Context, queue string) (QueueStats, error) {
	var s QueueStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
		  COUNT(*) FILTER (WHERE lease_expires_at IS NULL),
		  COUNT(*) FILTER (WHERE lease_expires_at IS NOT NULL),
		  (SELECT COUNT(*) FROM dead_messages WHERE queue = $1)
		FROM messages
		WHERE queue = $1`, queue).Scan(&s.Ready, &s.Leased, &s.Dead)
	if err != nil {
		return s, mapErr(err, "queue stats %s", queue)
	}
	return s, nil
}

// PurgeDeadLetters deletes dead messages parked before cutoff.
func (r *MessageQueueRepo) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM dead_messages WHERE dead_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, mapErr(err, "purge dead letters")
	}
	return res.RowsAffected()
}
