package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/testutil"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTransport(t *testing.T, client redis.UniversalClient, consumer string, opts StreamTransportOptions) *StreamTransport {
	t.Helper()
	opts.Client = client
	opts.Prefix = "test"
	opts.Consumer = consumer
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := NewStreamTransport(opts)
	require.NoError(t, err)
	return tr
}

func publishChunk(t *testing.T, tr messaging.Transport, jobID int64) *messaging.Envelope {
	t.Helper()
	env, err := messaging.Publish(context.Background(), tr,
		messaging.Headers{Source: "test", PayloadType: messaging.PayloadChunk},
		model.ChunkNotice{JobID: jobID, ChunkID: 0})
	require.NoError(t, err)
	return env
}

func TestNewStreamTransport_RequiresClient(t *testing.T) {
	_, err := NewStreamTransport(StreamTransportOptions{})
	require.Error(t, err)
}

func TestStreamTransport_PublishReceiveAck(t *testing.T) {
	client := setupTestRedis(t)
	tr := newTransport(t, client, "c1", StreamTransportOptions{})
	ctx := context.Background()

	_, err := tr.Receive(ctx, messaging.QueueProcessing)
	require.ErrorIs(t, err, messaging.ErrNoMessage)

	env := publishChunk(t, tr, 42)

	d, err := tr.Receive(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	require.NotNil(t, d.Envelope)
	assert.Equal(t, env.ID, d.Envelope.ID)
	assert.Equal(t, messaging.PayloadChunk, d.Envelope.Headers.PayloadType)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, messaging.QueueProcessing, d.Queue)

	stats, err := tr.Stats(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	assert.Equal(t, StreamStats{Length: 1, Pending: 1}, stats)

	require.NoError(t, tr.Ack(ctx, d))

	stats, err = tr.Stats(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	assert.Equal(t, StreamStats{}, stats)

	_, err = tr.Receive(ctx, messaging.QueueProcessing)
	require.ErrorIs(t, err, messaging.ErrNoMessage)
}

func TestStreamTransport_NackRedeliversAfterRetryDelay(t *testing.T) {
	client := setupTestRedis(t)
	tr := newTransport(t, client, "c1", StreamTransportOptions{
		LeaseDuration: time.Minute,
		RetryDelay:    50 * time.Millisecond,
	})
	ctx := context.Background()
	publishChunk(t, tr, 1)

	d, err := tr.Receive(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	require.NoError(t, tr.Nack(ctx, d, errors.New("state store unavailable")))

	var again *messaging.Delivery
	require.Eventually(t, func() bool {
		again, err = tr.Receive(ctx, messaging.QueueProcessing)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, d.Receipt, again.Receipt)
	assert.Equal(t, 2, again.Attempt)
}

func TestStreamTransport_ExpiredLeaseIsClaimedByOtherConsumer(t *testing.T) {
	client := setupTestRedis(t)
	opts := StreamTransportOptions{LeaseDuration: 100 * time.Millisecond}
	first := newTransport(t, client, "c1", opts)
	second := newTransport(t, client, "c2", opts)
	ctx := context.Background()
	publishChunk(t, first, 7)

	d, err := first.Receive(ctx, messaging.QueueProcessing)
	require.NoError(t, err)

	_, err = second.Receive(ctx, messaging.QueueProcessing)
	require.ErrorIs(t, err, messaging.ErrNoMessage)

	var claimed *messaging.Delivery
	require.Eventually(t, func() bool {
		claimed, err = second.Receive(ctx, messaging.QueueProcessing)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, d.Receipt, claimed.Receipt)
	assert.Equal(t, 2, claimed.Attempt)
	require.NoError(t, second.Ack(ctx, claimed))
}

func TestStreamTransport_MaxDeliveriesDeadLetters(t *testing.T) {
	client := setupTestRedis(t)
	tr := newTransport(t, client, "c1", StreamTransportOptions{
		LeaseDuration: time.Minute,
		RetryDelay:    10 * time.Millisecond,
		MaxDeliveries: 1,
	})
	ctx := context.Background()
	publishChunk(t, tr, 3)

	d, err := tr.Receive(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	require.NoError(t, tr.Nack(ctx, d, errors.New("boom")))

	time.Sleep(50 * time.Millisecond)
	_, err = tr.Receive(ctx, messaging.QueueProcessing)
	require.ErrorIs(t, err, messaging.ErrNoMessage)

	dead, err := tr.DeadLetters(ctx, messaging.QueueProcessing, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, d.Receipt, dead[0].Receipt)
	assert.Equal(t, 2, dead[0].Attempts)
	assert.Contains(t, dead[0].Reason, "exceeded 1 deliveries")
	assert.Equal(t, d.Raw, dead[0].Raw)

	stats, err := tr.Stats(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	assert.Equal(t, StreamStats{Dead: 1}, stats)
}

func TestStreamTransport_DeadLetterAndPurge(t *testing.T) {
	client := setupTestRedis(t)
	tr := newTransport(t, client, "c1", StreamTransportOptions{})
	ctx := context.Background()
	publishChunk(t, tr, 5)

	d, err := tr.Receive(ctx, messaging.QueueProcessing)
	require.NoError(t, err)
	require.NoError(t, tr.DeadLetter(ctx, d, messaging.Fatal(errors.New("phase ordering violation"))))

	dead, err := tr.DeadLetters(ctx, messaging.QueueProcessing, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Reason, "phase ordering violation")

	n, err := tr.PurgeDeadLetters(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = tr.PurgeDeadLetters(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStreamTransport_RecreatesDeletedStream(t *testing.T) {
	client := setupTestRedis(t)
	tr := newTransport(t, client, "c1", StreamTransportOptions{})
	ctx := context.Background()

	_, err := tr.Receive(ctx, messaging.QueueDelivered)
	require.ErrorIs(t, err, messaging.ErrNoMessage)
	require.NoError(t, client.Del(ctx, "test:"+messaging.QueueDelivered).Err())

	_, err = tr.Receive(ctx, messaging.QueueDelivered)
	require.ErrorIs(t, err, messaging.ErrNoMessage)
}

func TestStreamTransport_RejectsEmptyDelivery(t *testing.T) {
	tr := newTransport(t, redis.NewClient(&redis.Options{Addr: "localhost:0"}), "c1", StreamTransportOptions{})
	ctx := context.Background()
	require.Error(t, tr.Ack(ctx, nil))
	require.Error(t, tr.Nack(ctx, &messaging.Delivery{}, nil))
	require.Error(t, tr.DeadLetter(ctx, &messaging.Delivery{Queue: "processing"}, nil))
}
