package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/adapters/reaper"
	schedrunner "github.com/target/dataio-go/internal/adapters/scheduler"
	"github.com/target/dataio-go/internal/adapters/sinks"
	"github.com/target/dataio-go/internal/adapters/stagerunner"
	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/harvester"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/service"
	"github.com/target/dataio-go/internal/service/failurenotifier"
)

// StageRunnerConfig contains the dependencies shared by the pipeline stage workers.
type StageRunnerConfig struct {
	Store           core.StateStore
	Transport       messaging.Transport
	PollInterval    time.Duration
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

func runStages(ctx context.Context, cfg StageRunnerConfig, stages ...stagerunner.Stage) error {
	runner, err := stagerunner.NewRunner(stagerunner.RunnerOptions{
		Transport:    cfg.Transport,
		Stages:       stages,
		Notifier:     cfg.FailureNotifier,
		PollInterval: cfg.PollInterval,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create stage runner: %w", err)
	}
	return runner.Run(ctx)
}

// RunPartitioner starts the partitioner workers.
func RunPartitioner(ctx context.Context, cfg StageRunnerConfig, pcfg config.PartitionerConfig) error {
	svc, err := service.NewPartitionerService(service.PartitionerServiceOptions{
		Store:     cfg.Store,
		Transport: cfg.Transport,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create partitioner: %w", err)
	}
	return runStages(ctx, cfg, stagerunner.PartitionerStage(svc, pcfg.Concurrency))
}

// ProcessorConfig contains processor-specific dependencies.
type ProcessorConfig struct {
	Config      config.ProcessorConfig
	RedisClient redis.UniversalClient
	CachePrefix string
}

// RunProcessor starts the processor workers. Flows are shared through Redis when the
// flow cache is enabled.
func RunProcessor(ctx context.Context, cfg StageRunnerConfig, pcfg ProcessorConfig) error {
	opts := service.ProcessorServiceOptions{
		Store:         cfg.Store,
		Transport:     cfg.Transport,
		FlowCacheTTL:  pcfg.Config.FlowCacheTTL,
		MaxCachedJobs: pcfg.Config.MaxCachedJobs,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	}
	if pcfg.Config.FlowCacheEnabled {
		if pcfg.RedisClient == nil {
			return errors.New("processor flow cache requires a redis connection")
		}
		opts.FlowCache = data.NewRedisCacheRepo(pcfg.RedisClient, pcfg.CachePrefix)
	}
	svc, err := service.NewProcessorService(opts)
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}
	return runStages(ctx, cfg, stagerunner.ProcessorStage(svc, pcfg.Config.Concurrency))
}

// RunSink starts the sink delivery workers and the recorder that persists delivered results.
func RunSink(ctx context.Context, cfg StageRunnerConfig, scfg config.SinkConfig) error {
	svc, err := service.NewSinkService(service.SinkServiceOptions{
		Store: cfg.Store,
		Adapters: sinks.NewFactory(sinks.FactoryOptions{
			HTTPClient: &http.Client{},
			Logger:     cfg.Logger,
		}),
		Transport: cfg.Transport,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	return runStages(ctx, cfg,
		stagerunner.SinkStage(svc, scfg.Concurrency),
		stagerunner.RecorderStage(svc, scfg.RecorderConcurrency),
	)
}

// HarvesterRunnerConfig contains configuration for the harvester scheduler.
type HarvesterRunnerConfig struct {
	Store           core.StateStore
	Config          config.HarvesterConfig
	Logger          *slog.Logger
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunHarvester loads harvester definitions and runs the scheduler until ctx is done.
func RunHarvester(ctx context.Context, cfg HarvesterRunnerConfig) error {
	defs, err := harvester.LoadDefinitions(cfg.Config.DefinitionsFile)
	if err != nil {
		return fmt.Errorf("load harvester definitions: %w", err)
	}
	harvesters, err := defs.Build(harvester.BuildOptions{
		Store:      cfg.Store,
		WALDir:     cfg.Config.WALDir,
		StagingDir: cfg.Config.StagingDir,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("build harvesters: %w", err)
	}
	if len(harvesters) == 0 && cfg.Logger != nil {
		cfg.Logger.WarnContext(ctx, "no harvesters defined", "file", cfg.Config.DefinitionsFile)
	}

	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		Store:      cfg.Store,
		Harvesters: harvesters,
		MinSpacing: minSpacing(cfg.Config.MinSpacing),
		Interval:   cfg.Config.Interval,
		Notifier:   cfg.FailureNotifier,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create harvester scheduler: %w", err)
	}
	return runner.Run(ctx)
}

// minSpacing maps a configured zero to "no spacing"; the scheduler reads zero as its default.
func minSpacing(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// ReaperConfig contains configuration for the reaper.
type ReaperConfig struct {
	DB          *sql.DB
	Logger      *slog.Logger
	Config      config.ReaperConfig
	Announcer   core.JobAnnouncer
	DeadLetters reaper.DeadLetterPurger
	Metrics     statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:          cfg.DB,
		Config:      cfg.Config,
		Logger:      cfg.Logger,
		Announcer:   cfg.Announcer,
		DeadLetters: cfg.DeadLetters,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
