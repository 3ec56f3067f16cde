// Package scheduler provides adapters for running the harvester scheduler.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/harvester"
	obserrors "github.com/target/dataio-go/internal/observability/errors"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/service/failurenotifier"
)

// Tick is the part of the harvester scheduler the runner drives.
type Tick interface {
	Tick(ctx context.Context, now time.Time) (int, error)
	Wait()
}

// Runner provides a simple adapter to run the harvester scheduler loop.
// It ticks at a configurable interval and waits for in-flight harvests on shutdown.
type Runner struct {
	scheduler Tick
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store      core.StateStore
	Harvesters []*harvester.Harvester
	MinSpacing time.Duration
	Interval   time.Duration
	Notifier   *failurenotifier.Service
	Logger     *slog.Logger
	Metrics    statsd.Sink

	// Optional dependency injection for testing/decoupling
	Scheduler Tick
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sched := opts.Scheduler
	if sched == nil {
		s, err := harvester.NewScheduler(harvester.SchedulerOptions{
			Store:      opts.Store,
			Harvesters: opts.Harvesters,
			MinSpacing: opts.MinSpacing,
			Notifier:   opts.Notifier,
			Logger:     opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		sched = s
	}

	return &Runner{
		scheduler: sched,
		interval:  opts.Interval,
		logger:    opts.Logger.With("component", "scheduler_runner"),
		metrics:   opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Scheduler == nil && opts.Store == nil {
		return errors.New("state store is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run ticks immediately and then at the configured interval until the context is
// cancelled. Harvests still running at shutdown are waited for.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting harvester scheduler", "interval", r.interval)
	defer r.scheduler.Wait()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "harvester scheduler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

func (r *Runner) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	started, err := r.scheduler.Tick(ctx, now)
	elapsed := time.Since(start)

	r.emitTickMetrics(started, elapsed, err)

	if err != nil {
		// Continue running despite errors
		r.logger.ErrorContext(ctx, "harvester scheduler tick error", "error", err)
	} else if started > 0 {
		r.logger.InfoContext(ctx, "harvests started", "count", started)
	}
}

func (r *Runner) emitTickMetrics(started int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if started == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("harvester.tick", 1, tags)

	if started > 0 {
		r.metrics.Count("harvester.runs_started", int64(started), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("harvester.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("harvester.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
