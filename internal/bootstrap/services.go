package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/adapters/reaper"
	"github.com/target/dataio-go/internal/adapters/statestoreclient"
	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/notify/pagerduty"
	"github.com/target/dataio-go/internal/observability/notify/slack"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/service"
	"github.com/target/dataio-go/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	// StateStore is what stage workers and harvesters talk to: the HTTP client when
	// STATESTORE_URL is set, otherwise Local.
	StateStore core.StateStore
	// Local is the database-backed state store; nil without a database connection.
	Local         *service.StateStoreService
	Catalog       *service.CatalogService
	Transport     messaging.Transport
	DeadLetters   reaper.DeadLetterPurger
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Metrics returns the sink handed to services, nil when metrics are off.
func (o ObservabilityContainer) Metrics() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs       *data.JobRepo
	Chunks     *data.ChunkRepo
	Files      *data.FileRepo
	Flows      *data.FlowRepo
	Sinks      *data.SinkRepo
	Harvesters *data.HarvesterConfigRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, baseURL string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		prefix := cfg.Metrics.Prefix
		if prefix == "" {
			prefix = "dataio"
		}
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	notifications := cfg.Notifications
	if notifications.Slack.JobURLPrefix == "" && baseURL != "" {
		notifications.Slack.JobURLPrefix = baseURL + "/api/jobs/"
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, notifications),
		NotifierConfig:  notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, logger *slog.Logger) *serviceRepositories {
	cfg := data.RepoConfig{Logger: logger}
	return &serviceRepositories{
		Jobs:       data.NewJobRepo(db, cfg),
		Chunks:     data.NewChunkRepo(db, cfg),
		Files:      data.NewFileRepo(db, cfg),
		Flows:      data.NewFlowRepo(db, cfg),
		Sinks:      data.NewSinkRepo(db, cfg),
		Harvesters: data.NewHarvesterConfigRepo(db, cfg),
	}
}

type localServices struct {
	stateStore *service.StateStoreService
	catalog    *service.CatalogService
}

func newLocalServices(
	repos *serviceRepositories,
	publisher messaging.Transport,
	metrics statsd.Sink,
	logger *slog.Logger,
) (localServices, error) {
	stateStore, err := service.NewStateStoreService(service.StateStoreServiceOptions{
		Repos: service.StateStoreRepos{
			Jobs:       repos.Jobs,
			Chunks:     repos.Chunks,
			Flows:      repos.Flows,
			Sinks:      repos.Sinks,
			Harvesters: repos.Harvesters,
			Files:      repos.Files,
		},
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return localServices{}, fmt.Errorf("create state store service: %w", err)
	}

	catalog, err := service.NewCatalogService(service.CatalogServiceOptions{
		Repos: service.CatalogRepos{
			Flows:      repos.Flows,
			Sinks:      repos.Sinks,
			Harvesters: repos.Harvesters,
		},
		Logger: logger,
	})
	if err != nil {
		return localServices{}, fmt.Errorf("create catalog service: %w", err)
	}

	return localServices{stateStore: stateStore, catalog: catalog}, nil
}

//nolint:ireturn // callers only need the state store port.
func newRemoteStateStore(cfg config.StateStoreClientConfig, logger *slog.Logger) (core.StateStore, error) {
	client, err := statestoreclient.New(statestoreclient.Options{
		BaseURL: cfg.URL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create state store client: %w", err)
	}
	return client, nil
}

// NewServices wires the transport, the state store and the observability adapters.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := deps.Config

	observability := buildObservability(logger, appCfg.Observability, appCfg.HTTP.BaseURL)

	bundle, err := BuildTransport(TransportDeps{
		Config:      appCfg.Transport,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	container := &ServiceContainer{
		Transport:     bundle.Transport,
		DeadLetters:   bundle.DeadLetters,
		Observability: observability,
	}

	if deps.DB != nil {
		local, err := newLocalServices(buildRepositories(deps.DB, logger), bundle.Transport, observability.Metrics(), logger)
		if err != nil {
			return nil, err
		}
		container.Local = local.stateStore
		container.Catalog = local.catalog
		container.StateStore = local.stateStore
	}

	if appCfg.StateStore.IsRemote() {
		remote, err := newRemoteStateStore(appCfg.StateStore, logger)
		if err != nil {
			return nil, err
		}
		container.StateStore = remote
	}

	if container.StateStore == nil {
		return nil, errors.New("no state store: set STATESTORE_URL or connect a database")
	}

	return container, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:          baseLogger,
		Sinks:           sinks,
		Stages:          cfg.Stages,
		IncludeTestJobs: cfg.IncludeTestJobs,
		DedupWindow:     cfg.DedupWindow,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

func (d *serviceStartupDeps) appConfig() *config.AppConfig {
	if d.cfg.Config == nil {
		return &config.AppConfig{}
	}
	return d.cfg.Config
}

func (d *serviceStartupDeps) stageConfig() StageRunnerConfig {
	obs := d.cfg.Services.Observability
	return StageRunnerConfig{
		Store:           d.cfg.Services.StateStore,
		Transport:       d.cfg.Services.Transport,
		PollInterval:    d.appConfig().Transport.PollInterval,
		Logger:          d.logger,
		Metrics:         obs.Metrics(),
		FailureNotifier: obs.FailureNotifier,
	}
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeAPI] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newPartitionerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModePartitioner,
		name: "partitioner",
		start: func(ctx context.Context) error {
			return RunPartitioner(ctx, deps.stageConfig(), deps.appConfig().Partitioner)
		},
	}
}

func newProcessorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeProcessor,
		name: "processor",
		start: func(ctx context.Context) error {
			return RunProcessor(ctx, deps.stageConfig(), ProcessorConfig{
				Config:      deps.appConfig().Processor,
				RedisClient: deps.cfg.RedisClient,
				CachePrefix: deps.appConfig().Transport.StreamPrefix,
			})
		},
	}
}

func newSinkBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSink,
		name: "sink",
		start: func(ctx context.Context) error {
			return RunSink(ctx, deps.stageConfig(), deps.appConfig().Sink)
		},
	}
}

func newHarvesterBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHarvester,
		name: "harvester scheduler",
		start: func(ctx context.Context) error {
			obs := deps.cfg.Services.Observability
			return RunHarvester(ctx, HarvesterRunnerConfig{
				Store:           deps.cfg.Services.StateStore,
				Config:          deps.appConfig().Harvester,
				Logger:          deps.logger,
				Metrics:         obs.Metrics(),
				FailureNotifier: obs.FailureNotifier,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps.cfg.Services.Local == nil {
				return errors.New("reaper requires a database connection")
			}
			return RunReaper(ctx, ReaperConfig{
				DB:          deps.cfg.DB,
				Logger:      deps.logger,
				Config:      deps.appConfig().Reaper,
				Announcer:   deps.cfg.Services.Local,
				DeadLetters: deps.cfg.Services.DeadLetters,
				Metrics:     deps.cfg.Services.Observability.Metrics(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Services == nil {
		return nil
	}
	return []backgroundService{
		newPartitionerBackgroundService(deps),
		newProcessorBackgroundService(deps),
		newSinkBackgroundService(deps),
		newHarvesterBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services == nil {
		return errors.New("service orchestration config missing services")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	if enabledServices[config.ServiceModeAPI] && cfg.Services.Local == nil {
		return errors.New("the api service requires a database connection")
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// The service context is already cancelled; in-flight requests get their own budget.
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
