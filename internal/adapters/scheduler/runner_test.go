package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/observability/statsd"
)

type fakeTick struct {
	mu     sync.Mutex
	ticks  int
	waited bool
	err    error
}

func (f *fakeTick) Tick(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakeTick) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = true
}

func (f *fakeTick) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_TicksUntilCanceled(t *testing.T) {
	tick := &fakeTick{}
	rec := &statsd.Recorder{}
	runner, err := NewRunner(RunnerOptions{
		Scheduler: tick,
		Interval:  10 * time.Millisecond,
		Logger:    quietLogger(),
		Metrics:   rec,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return tick.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	tick.mu.Lock()
	assert.True(t, tick.waited, "in-flight harvests are awaited")
	tick.mu.Unlock()
	assert.GreaterOrEqual(t, rec.Sum("harvester.runs_started"), float64(3))
}

func TestRunner_KeepsTickingAfterErrors(t *testing.T) {
	tick := &fakeTick{err: errors.New("store down")}
	rec := &statsd.Recorder{}
	runner, err := NewRunner(RunnerOptions{Scheduler: tick, Interval: 10 * time.Millisecond, Logger: quietLogger(), Metrics: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return tick.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var errorTicks int
	for _, p := range rec.Points() {
		if p.Name == "harvester.tick" && p.Tags["result"] == "error" {
			errorTicks++
		}
	}
	assert.GreaterOrEqual(t, errorTicks, 2)
}

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}
