package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/testutil"
)

func newTestEnvelope(t *testing.T, jobID int64) *messaging.Envelope {
	t.Helper()
	env, err := messaging.NewEnvelope(messaging.Headers{
		Source:      "test",
		PayloadType: messaging.PayloadNewJob,
	}, map[string]int64{"job_id": jobID})
	require.NoError(t, err)
	return env
}

func TestMessageQueueRepo_Integration_ReceiveAckNack(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		q := NewMessageQueueRepo(db, MessageQueueConfig{RetryDelay: -1})

		require.NoError(t, q.Publish(ctx, messaging.QueuePartitioning, newTestEnvelope(t, 1)))
		require.NoError(t, q.Publish(ctx, messaging.QueuePartitioning, newTestEnvelope(t, 2)))

		first, err := q.Receive(ctx, messaging.QueuePartitioning)
		require.NoError(t, err)
		require.NotNil(t, first.Envelope)
		assert.Equal(t, 1, first.Attempt)
		assert.JSONEq(t, `{"job_id":1}`, string(first.Envelope.Body))

		second, err := q.Receive(ctx, messaging.QueuePartitioning)
		require.NoError(t, err)
		assert.JSONEq(t, `{"job_id":2}`, string(second.Envelope.Body))

		_, err = q.Receive(ctx, messaging.QueuePartitioning)
		require.ErrorIs(t, err, messaging.ErrNoMessage)

		stats, err := q.Stats(ctx, messaging.QueuePartitioning)
		require.NoError(t, err)
		assert.Equal(t, QueueStats{Ready: 0, Leased: 2}, stats)

		require.NoError(t, q.Ack(ctx, second))
		require.NoError(t, q.Nack(ctx, first, errors.New("downstream unavailable")))

		again, err := q.Receive(ctx, messaging.QueuePartitioning)
		require.NoError(t, err)
		assert.Equal(t, first.Receipt, again.Receipt)
		assert.Equal(t, 2, again.Attempt)
		require.NoError(t, q.Ack(ctx, again))

		_, err = q.Receive(ctx, messaging.QueueProcessing)
		require.ErrorIs(t, err, messaging.ErrNoMessage)
	})
}

func TestMessageQueueRepo_Integration_ExpiredLeaseIsRedelivered(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		q := NewMessageQueueRepo(db, MessageQueueConfig{
			RepoConfig:    RepoConfig{TimeProvider: clock},
			LeaseDuration: time.Minute,
		})

		require.NoError(t, q.Publish(ctx, messaging.QueueProcessing, newTestEnvelope(t, 7)))
		d, err := q.Receive(ctx, messaging.QueueProcessing)
		require.NoError(t, err)

		clock.Advance(30 * time.Second)
		_, err = q.Receive(ctx, messaging.QueueProcessing)
		require.ErrorIs(t, err, messaging.ErrNoMessage, "lease still held")

		clock.Advance(time.Minute)
		redelivered, err := q.Receive(ctx, messaging.QueueProcessing)
		require.NoError(t, err)
		assert.Equal(t, d.Receipt, redelivered.Receipt)
		assert.Equal(t, 2, redelivered.Attempt)
	})
}

func TestMessageQueueRepo_Integration_DeadLetters(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		q := NewMessageQueueRepo(db, MessageQueueConfig{
			RepoConfig:    RepoConfig{TimeProvider: clock},
			RetryDelay:    -1,
			MaxDeliveries: 1,
		})

		require.NoError(t, q.Publish(ctx, messaging.QueueDelivering, newTestEnvelope(t, 3)))
		d, err := q.Receive(ctx, messaging.QueueDelivering)
		require.NoError(t, err)
		require.NoError(t, q.Nack(ctx, d, errors.New("sink down")))

		// The second delivery exceeds MaxDeliveries and is parked instead of returned.
		_, err = q.Receive(ctx, messaging.QueueDelivering)
		require.ErrorIs(t, err, messaging.ErrNoMessage)

		stats, err := q.Stats(ctx, messaging.QueueDelivering)
		require.NoError(t, err)
		assert.Equal(t, QueueStats{Dead: 1}, stats)

		require.NoError(t, q.Publish(ctx, messaging.QueueDelivering, newTestEnvelope(t, 4)))
		d, err = q.Receive(ctx, messaging.QueueDelivering)
		require.NoError(t, err)
		require.NoError(t, q.DeadLetter(ctx, d, messaging.Fatal(errors.New("phase ordering"))))

		stats, err = q.Stats(ctx, messaging.QueueDelivering)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Dead)

		purged, err := q.PurgeDeadLetters(ctx, testutil.TestTime().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)
	})
}

func TestMessageQueueRepo_Integration_WaitForMessage(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q := NewMessageQueueRepo(db, MessageQueueConfig{})

		waited := make(chan error, 1)
		go func() { waited <- q.WaitForMessage(ctx, messaging.QueueDelivered) }()

		// Publish until the listener has attached; each publish notifies.
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case err := <-waited:
				require.NoError(t, err)
				return
			case <-ticker.C:
				require.NoError(t, q.Publish(ctx, messaging.QueueDelivered, newTestEnvelope(t, 9)))
			case <-ctx.Done():
				t.Fatal("WaitForMessage did not return after publish")
			}
		}
	})
}

func TestAdvisoryLockRequeueMinor(t *testing.T) {
	a := advisoryLockRequeueMinor(messaging.QueueProcessing)
	b := advisoryLockRequeueMinor(messaging.QueueDelivering)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, a, int64(0))
	assert.Equal(t, a, advisoryLockRequeueMinor(messaging.QueueProcessing))
}
