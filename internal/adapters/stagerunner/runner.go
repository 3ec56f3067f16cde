// Package stagerunner runs the pipeline stages as message consumers.
package stagerunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/service"
	"github.com/target/dataio-go/internal/service/failurenotifier"
)

// Route binds a handler to a payload type and optional resource.
type Route struct {
	PayloadType messaging.PayloadType
	Resource    string
	Handler     messaging.HandlerFunc
}

// Stage is one consumer pool reading a single queue.
type Stage struct {
	Name        string
	Queue       string
	Routes      []Route
	Concurrency int
}

// RunnerOptions groups dependencies for the stage runner.
type RunnerOptions struct {
	Transport    messaging.Transport // Required
	Stages       []Stage             // Required
	Notifier     *failurenotifier.Service
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// Runner owns one consumer per stage.
type Runner struct {
	consumers []*stageConsumer
	logger    *slog.Logger
}

type stageConsumer struct {
	name     string
	consumer *messaging.Consumer
}

// NewRunner builds a router and consumer for every stage.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if len(opts.Stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	logger := resolveLogger(opts.Logger)

	consumers := make([]*stageConsumer, 0, len(opts.Stages))
	seen := make(map[string]struct{}, len(opts.Stages))
	for _, stage := range opts.Stages {
		if _, dup := seen[stage.Name]; dup {
			return nil, fmt.Errorf("stage %q registered twice", stage.Name)
		}
		seen[stage.Name] = struct{}{}

		c, err := buildConsumer(opts, stage, logger)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		consumers = append(consumers, &stageConsumer{name: stage.Name, consumer: c})
	}
	return &Runner{consumers: consumers, logger: logger.With("component", "stage_runner")}, nil
}

func buildConsumer(opts RunnerOptions, stage Stage, logger *slog.Logger) (*messaging.Consumer, error) {
	if stage.Name == "" || stage.Queue == "" {
		return nil, errors.New("stage name and queue are required")
	}
	if len(stage.Routes) == 0 {
		return nil, errors.New("stage has no routes")
	}
	router := messaging.NewRouter(messaging.RouterOptions{
		Logger:  logger.With("stage", stage.Name),
		Metrics: opts.Metrics,
		OnFatal: opts.Notifier.MessageHook(stage.Name),
	})
	for _, route := range stage.Routes {
		if route.Handler == nil {
			return nil, fmt.Errorf("route %s has no handler", route.PayloadType)
		}
		queue, err := messaging.QueueFor(route.PayloadType)
		if err != nil {
			return nil, err
		}
		if queue != stage.Queue {
			return nil, fmt.Errorf("%s messages are published to %s, not %s", route.PayloadType, queue, stage.Queue)
		}
		if route.Resource != "" {
			router.RegisterResource(route.PayloadType, route.Resource, route.Handler)
			continue
		}
		router.Register(route.PayloadType, route.Handler)
	}
	return messaging.NewConsumer(messaging.ConsumerOptions{
		Transport:    opts.Transport,
		Queue:        stage.Queue,
		Router:       router,
		Concurrency:  resolveWorkers(stage.Concurrency),
		PollInterval: opts.PollInterval,
		Logger:       logger.With("stage", stage.Name),
		Metrics:      opts.Metrics,
	})
}

// Stages lists the stage names in registration order.
func (r *Runner) Stages() []string {
	names := make([]string, 0, len(r.consumers))
	for _, c := range r.consumers {
		names = append(names, c.name)
	}
	return names
}

// Run blocks until ctx is canceled or a stage fails.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting stage runner", "stages", r.Stages())

	group, gctx := errgroup.WithContext(ctx)
	for _, c := range r.consumers {
		group.Go(func() error {
			if err := c.consumer.Run(gctx); err != nil {
				return fmt.Errorf("%s stage: %w", c.name, err)
			}
			return nil
		})
	}
	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "stage runner stopped", "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "stage runner stopped")
	return nil
}

// PartitionerStage consumes announced jobs.
func PartitionerStage(svc *service.PartitionerService, concurrency int) Stage {
	return Stage{
		Name:        service.StagePartitioner,
		Queue:       messaging.QueuePartitioning,
		Concurrency: concurrency,
		Routes:      []Route{{PayloadType: messaging.PayloadNewJob, Handler: svc.HandleNewJob}},
	}
}

// ProcessorStage consumes announced chunks.
func ProcessorStage(svc *service.ProcessorService, concurrency int) Stage {
	return Stage{
		Name:        service.StageProcessor,
		Queue:       messaging.QueueProcessing,
		Concurrency: concurrency,
		Routes:      []Route{{PayloadType: messaging.PayloadChunk, Handler: svc.HandleChunk}},
	}
}

// SinkStage consumes processed chunk results.
func SinkStage(svc *service.SinkService, concurrency int) Stage {
	return Stage{
		Name:        service.StageSink,
		Queue:       messaging.QueueDelivering,
		Concurrency: concurrency,
		Routes:      []Route{{PayloadType: messaging.PayloadChunkResult, Handler: svc.HandleChunkResult}},
	}
}

// RecorderStage consumes delivered chunk results.
func RecorderStage(svc *service.SinkService, concurrency int) Stage {
	return Stage{
		Name:        service.StageRecorder,
		Queue:       messaging.QueueDelivered,
		Concurrency: concurrency,
		Routes:      []Route{{PayloadType: messaging.PayloadSinkChunkResult, Handler: svc.HandleSinkChunkResult}},
	}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}
