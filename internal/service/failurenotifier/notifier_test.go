package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	payloads []notify.FailurePayload
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, p notify.FailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, p)
		return nil
	})
}

func TestServiceNotifyFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got capture
	svc := NewService(Options{
		Now: func() time.Time { return now },
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: got.sink()},
			{Name: "broken", Sink: notify.SinkFunc(func(context.Context, notify.FailurePayload) error {
				return errors.New("webhook down")
			})},
			{Name: "missing"},
		},
	})
	require.True(t, svc.Enabled())

	svc.NotifyFailure(context.Background(), notify.FailurePayload{JobID: 123, Stage: "sink"})

	require.Len(t, got.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, got.payloads[0].Severity)
	assert.Equal(t, now, got.payloads[0].OccurredAt)
}

func TestServiceSkipsTestJobs(t *testing.T) {
	var got capture
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: got.sink()}}})

	svc.NotifyFailure(context.Background(), notify.FailurePayload{JobID: 1, JobKind: string(model.JobKindTest)})
	assert.Empty(t, got.payloads)
}

func TestServiceWithoutSinks(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.NotifyFailure(context.Background(), notify.FailurePayload{JobID: 1})
	svc.MessageHook("processor")(context.Background(), &messaging.Delivery{}, errors.New("x"))
}

func TestMessageHookBuildsPayload(t *testing.T) {
	var got capture
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: got.sink()}}})

	env, err := messaging.NewEnvelope(messaging.Headers{
		Source:      "processor",
		PayloadType: messaging.PayloadChunkResult,
		Resource:    "sink-4",
	}, map[string]any{"job_id": 9, "chunk_id": 2, "phase": "PROCESSING", "items": []any{}})
	require.NoError(t, err)

	hook := svc.MessageHook("sink")
	hook(context.Background(), &messaging.Delivery{Envelope: env, Queue: messaging.QueueDelivering},
		messaging.Fatal(apperrors.Conflict("delivered result differs")))

	require.Len(t, got.payloads, 1)
	p := got.payloads[0]
	assert.Equal(t, "sink", p.Stage)
	assert.Equal(t, messaging.QueueDelivering, p.Queue)
	assert.Equal(t, env.ID, p.MessageID)
	assert.Equal(t, string(messaging.PayloadChunkResult), p.PayloadType)
	assert.Equal(t, int64(9), p.JobID)
	require.NotNil(t, p.ChunkID)
	assert.Equal(t, 2, *p.ChunkID)
	assert.Equal(t, "conflict", p.ErrorClass)
	assert.Equal(t, "sink-4", p.Metadata["resource"])
}

func TestServiceStageFilterAndTestJobs(t *testing.T) {
	var got capture
	svc := NewService(Options{
		Sinks:           []SinkRegistration{{Name: "capture", Sink: got.sink()}},
		Stages:          []string{"sink", "harvester"},
		IncludeTestJobs: true,
	})

	ctx := context.Background()
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 1, Stage: "processor"})
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 2, Stage: "sink", JobKind: string(model.JobKindTest)})
	svc.NotifyFailure(ctx, notify.FailurePayload{Harvester: "nightly", Stage: "harvester"})

	require.Len(t, got.payloads, 2)
	assert.Equal(t, int64(2), got.payloads[0].JobID)
	assert.Equal(t, "nightly", got.payloads[1].Harvester)
}

func TestServiceDedupWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got capture
	svc := NewService(Options{
		Sinks:       []SinkRegistration{{Name: "capture", Sink: got.sink()}},
		Now:         func() time.Time { return now },
		DedupWindow: 10 * time.Minute,
	})
	ctx := context.Background()
	chunk := func(id int) *int { return &id }

	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 5, ChunkID: chunk(0), Stage: "processor", ErrorClass: "conflict"})
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 5, ChunkID: chunk(1), Stage: "processor", ErrorClass: "conflict"})
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 5, Stage: "processor", ErrorClass: "internal"})
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 6, Stage: "processor", ErrorClass: "conflict"})
	require.Len(t, got.payloads, 3)

	now = now.Add(11 * time.Minute)
	svc.NotifyFailure(ctx, notify.FailurePayload{JobID: 5, ChunkID: chunk(2), Stage: "processor", ErrorClass: "conflict"})
	assert.Len(t, got.payloads, 4)

	// Messages without a job are never deduplicated.
	svc.NotifyFailure(ctx, notify.FailurePayload{MessageID: "m-1", Stage: "sink"})
	svc.NotifyFailure(ctx, notify.FailurePayload{MessageID: "m-1", Stage: "sink"})
	assert.Len(t, got.payloads, 6)
}
