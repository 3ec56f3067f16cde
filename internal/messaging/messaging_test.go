package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkNotice struct {
	JobID   int64 `json:"job_id"`
	ChunkID int   `json:"chunk_id"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chunkEnvelope(t *testing.T) *Envelope {
	t.Helper()
	env, err := NewEnvelope(Headers{Source: "partitioner", PayloadType: PayloadChunk}, chunkNotice{JobID: 4, ChunkID: 0})
	require.NoError(t, err)
	return env
}

func TestValidate(t *testing.T) {
	good := &Envelope{ID: "1", Kind: KindJSON, Headers: Headers{PayloadType: PayloadNewJob}, Body: json.RawMessage(`{"job_id":12}`)}
	require.NoError(t, Validate(good))

	tests := []struct {
		name string
		env  *Envelope
	}{
		{"nil envelope", nil},
		{"wrong kind", &Envelope{Kind: "text/plain", Headers: good.Headers, Body: good.Body}},
		{"empty body", &Envelope{Kind: KindJSON, Headers: good.Headers}},
		{"whitespace body", &Envelope{Kind: KindJSON, Headers: good.Headers, Body: json.RawMessage("  ")}},
		{"null body", &Envelope{Kind: KindJSON, Headers: good.Headers, Body: json.RawMessage("null")}},
		{"empty string body", &Envelope{Kind: KindJSON, Headers: good.Headers, Body: json.RawMessage(`""`)}},
		{"unknown payload type", &Envelope{Kind: KindJSON, Headers: Headers{PayloadType: "Marc21"}, Body: good.Body}},
		{"not json", &Envelope{Kind: KindJSON, Headers: good.Headers, Body: json.RawMessage(`{job_id:`)}},
		{"schema mismatch", &Envelope{Kind: KindJSON, Headers: good.Headers, Body: json.RawMessage(`{"job_id":"twelve"}`)}},
		{"bad item status", &Envelope{
			Kind:    KindJSON,
			Headers: Headers{PayloadType: PayloadChunkResult},
			Body:    json.RawMessage(`{"job_id":1,"chunk_id":0,"phase":"PROCESSING","items":[{"item_id":0,"status":"OK"}]}`),
		}},
		{"wrong phase for sink result", &Envelope{
			Kind:    KindJSON,
			Headers: Headers{PayloadType: PayloadSinkChunkResult},
			Body:    json.RawMessage(`{"job_id":1,"chunk_id":0,"phase":"PROCESSING","items":[]}`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.env), ErrMalformed)
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	assert.Nil(t, DecodeEnvelope(nil))
	assert.Nil(t, DecodeEnvelope([]byte("garbage")))

	env := &Envelope{ID: "x", Kind: KindJSON, Headers: Headers{PayloadType: PayloadChunk}, Body: json.RawMessage(`{"job_id":1,"chunk_id":2}`)}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	got := DecodeEnvelope(raw)
	require.NotNil(t, got)
	assert.Equal(t, env.Headers, got.Headers)
	assert.JSONEq(t, string(env.Body), string(got.Body))
}

func TestRouter_Dispositions(t *testing.T) {
	handlerErr := errors.New("state store unavailable")
	tests := []struct {
		name    string
		handler HandlerFunc
		want    Disposition
	}{
		{"success acks", func(context.Context, *Message) error { return nil }, Ack},
		{"business error retries", func(context.Context, *Message) error { return handlerErr }, Retry},
		{"fatal error dead letters", func(context.Context, *Message) error { return Fatal(handlerErr) }, DeadLetter},
		{"decode failure drops", func(_ context.Context, m *Message) error {
			_, err := Decode[[]string](m)
			return err
		}, Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(RouterOptions{Logger: quietLogger()})
			r.Register(PayloadChunk, tt.handler)
			got, _ := r.Route(context.Background(), &Delivery{Envelope: chunkEnvelope(t), Attempt: 1})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_MalformedNeverReachesHandler(t *testing.T) {
	called := false
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	r.Register(PayloadChunk, HandlerFunc(func(context.Context, *Message) error {
		called = true
		return errors.New("should not run")
	}))

	for _, d := range []*Delivery{
		nil,
		{Envelope: nil, Raw: []byte("not-an-envelope")},
		{Envelope: &Envelope{Kind: KindJSON, Headers: Headers{PayloadType: PayloadChunk}, Body: json.RawMessage("null")}},
		{Envelope: &Envelope{Kind: KindJSON, Headers: Headers{PayloadType: PayloadChunk}}},
	} {
		got, err := r.Route(context.Background(), d)
		assert.Equal(t, Drop, got)
		assert.ErrorIs(t, err, ErrMalformed)
	}
	assert.False(t, called)
}

func TestRouter_ResourceRouting(t *testing.T) {
	var hit string
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	r.Register(PayloadChunk, HandlerFunc(func(context.Context, *Message) error { hit = "default"; return nil }))
	r.RegisterResource(PayloadChunk, "sink-7", HandlerFunc(func(context.Context, *Message) error { hit = "sink-7"; return nil }))

	env := chunkEnvelope(t)
	env.Headers.Resource = "sink-7"
	_, err := r.Route(context.Background(), &Delivery{Envelope: env})
	require.NoError(t, err)
	assert.Equal(t, "sink-7", hit)

	env.Headers.Resource = "other"
	_, err = r.Route(context.Background(), &Delivery{Envelope: env})
	require.NoError(t, err)
	assert.Equal(t, "default", hit)
}

func TestRouter_OnFatalObservesDeadLetters(t *testing.T) {
	var seen []error
	r := NewRouter(RouterOptions{
		Logger: quietLogger(),
		OnFatal: func(_ context.Context, d *Delivery, err error) {
			assert.Equal(t, QueueProcessing, d.Queue)
			seen = append(seen, err)
		},
	})
	cause := errors.New("flow version missing")
	r.Register(PayloadChunk, HandlerFunc(func(context.Context, *Message) error { return Fatal(cause) }))
	r.Register(PayloadNewJob, HandlerFunc(func(context.Context, *Message) error { return cause }))

	got, _ := r.Route(context.Background(), &Delivery{Envelope: chunkEnvelope(t), Queue: QueueProcessing, Attempt: 1})
	assert.Equal(t, DeadLetter, got)

	env, err := NewEnvelope(Headers{PayloadType: PayloadNewJob}, map[string]int64{"job_id": 1})
	require.NoError(t, err)
	got, _ = r.Route(context.Background(), &Delivery{Envelope: env, Queue: QueueProcessing, Attempt: 1})
	assert.Equal(t, Retry, got)

	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], cause)
}

func TestRouter_NoHandlerDrops(t *testing.T) {
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	got, err := r.Route(context.Background(), &Delivery{Envelope: chunkEnvelope(t)})
	assert.Equal(t, Drop, got)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestConsumer_NullPayloadIsDroppedNotRedelivered(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	calls := 0
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	r.Register(PayloadChunk, HandlerFunc(func(context.Context, *Message) error { calls++; return nil }))
	c, err := NewConsumer(ConsumerOptions{Transport: tr, Queue: QueueProcessing, Router: r, Logger: quietLogger()})
	require.NoError(t, err)

	raw, err := json.Marshal(&Envelope{ID: "n", Kind: KindJSON, Headers: Headers{PayloadType: PayloadChunk}, Body: json.RawMessage("null")})
	require.NoError(t, err)
	tr.PublishRaw(QueueProcessing, raw)
	tr.PublishRaw(QueueProcessing, []byte(""))

	for range 2 {
		d, err := tr.Receive(ctx, QueueProcessing)
		require.NoError(t, err)
		require.NoError(t, c.Process(ctx, d))
	}

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, tr.Len(QueueProcessing))
	assert.Equal(t, 0, tr.InFlight())
	assert.Empty(t, tr.DeadLetters())
}

func TestConsumer_BusinessFailureRedelivers(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	attempts := []int{}
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	r.Register(PayloadChunk, HandlerFunc(func(_ context.Context, m *Message) error {
		attempts = append(attempts, m.Attempt)
		if m.Attempt == 1 {
			return errors.New("sink timeout")
		}
		return nil
	}))
	c, err := NewConsumer(ConsumerOptions{Transport: tr, Queue: QueueProcessing, Router: r, Logger: quietLogger()})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, QueueProcessing, chunkEnvelope(t)))
	for range 2 {
		d, err := tr.Receive(ctx, QueueProcessing)
		require.NoError(t, err)
		require.NoError(t, c.Process(ctx, d))
	}
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, 0, tr.Len(QueueProcessing))
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	tr := NewMemoryTransport()
	handled := make(chan string, 1)
	r := NewRouter(RouterOptions{Logger: quietLogger()})
	r.Register(PayloadNewJob, HandlerFunc(func(_ context.Context, m *Message) error {
		handled <- m.ID
		return nil
	}))
	c, err := NewConsumer(ConsumerOptions{
		Transport:    tr,
		Queue:        QueuePartitioning,
		Router:       r,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	env, err := Publish(ctx, tr, Headers{Source: "test", PayloadType: PayloadNewJob}, map[string]int64{"job_id": 9})
	require.NoError(t, err)

	select {
	case id := <-handled:
		assert.Equal(t, env.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("message not handled")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestNewConsumer_RequiresDependencies(t *testing.T) {
	_, err := NewConsumer(ConsumerOptions{})
	assert.Error(t, err)
	_, err = NewConsumer(ConsumerOptions{Transport: NewMemoryTransport(), Router: NewRouter(RouterOptions{})})
	assert.ErrorContains(t, err, "queue")
}
