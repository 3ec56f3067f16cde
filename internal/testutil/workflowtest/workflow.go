// Package workflowtest runs the whole ingestion pipeline in-process for end-to-end tests:
// the HTTP API on an httptest server plus partitioner, processor and sink workers.
package workflowtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/adapters/statestoreclient"
	"github.com/target/dataio-go/internal/bootstrap"
	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	httpx "github.com/target/dataio-go/internal/http"
	"github.com/target/dataio-go/internal/testutil"
)

// WorkflowTestOptions selects the transport and the state store the workers use.
type WorkflowTestOptions struct {
	// EnableRedis runs the stages over Redis streams instead of the memory transport.
	EnableRedis bool
	// RemoteStateStore makes the workers reach the state store through the HTTP API.
	RemoteStateStore bool
	PollInterval     time.Duration
	Concurrency      int
	Logger           *slog.Logger
}

// DefaultWorkflowOptions runs everything over the memory transport with a local state store.
func DefaultWorkflowOptions() WorkflowTestOptions {
	return WorkflowTestOptions{
		PollInterval: 20 * time.Millisecond,
		Concurrency:  2,
	}
}

// RedisWorkflowOptions runs the stages over Redis streams.
func RedisWorkflowOptions() WorkflowTestOptions {
	opts := DefaultWorkflowOptions()
	opts.EnableRedis = true
	return opts
}

// RemoteWorkflowOptions routes every state store call from the workers through the API.
func RemoteWorkflowOptions() WorkflowTestOptions {
	opts := DefaultWorkflowOptions()
	opts.RemoteStateStore = true
	return opts
}

// WorkflowTestHarness owns a running pipeline. Close stops the workers and the server.
type WorkflowTestHarness struct {
	t        testutil.TestingTB
	DB       *sql.DB
	Redis    *redis.Client
	Services *bootstrap.ServiceContainer
	// Store is the state store the workers use.
	Store  core.StateStore
	Server *httptest.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewWorkflowTestHarness wires the services on db and starts the pipeline.
func NewWorkflowTestHarness(t testutil.TestingTB, db *sql.DB, opts WorkflowTestOptions) *WorkflowTestHarness {
	t.Helper()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	h := &WorkflowTestHarness{t: t, DB: db}

	appCfg := &config.AppConfig{
		Transport: config.TransportConfig{
			Kind:          config.TransportMemory,
			LeaseDuration: 5 * time.Second,
			MaxDeliveries: 3,
			StreamPrefix:  "dataio-test",
			ConsumerGroup: "dataio-test",
		},
	}
	if opts.EnableRedis {
		h.Redis = testutil.SetupTestRedis(t)
		appCfg.Transport.Kind = config.TransportRedis
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      appCfg,
		DB:          db,
		RedisClient: h.redisClient(),
		Logger:      logger,
	})
	if err != nil {
		h.closeRedis()
		t.Fatalf("wire services: %v", err)
	}
	h.Services = services

	h.Server = httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		StateStore: services.Local,
		Catalog:    services.Catalog,
		Ready:      db.PingContext,
		Logger:     logger,
	}))

	h.Store = services.StateStore
	if opts.RemoteStateStore {
		client, clientErr := statestoreclient.New(statestoreclient.Options{
			BaseURL: h.Server.URL,
			Timeout: 10 * time.Second,
			Logger:  logger,
		})
		if clientErr != nil {
			h.Server.Close()
			h.closeRedis()
			t.Fatalf("create state store client: %v", clientErr)
		}
		h.Store = client
	}

	h.start(logger, opts)
	return h
}

//nolint:ireturn // nil when Redis is disabled.
func (h *WorkflowTestHarness) redisClient() redis.UniversalClient {
	if h.Redis == nil {
		return nil
	}
	return h.Redis
}

func (h *WorkflowTestHarness) start(logger *slog.Logger, opts WorkflowTestOptions) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	h.cancel, h.group = cancel, g

	stageCfg := bootstrap.StageRunnerConfig{
		Store:        h.Store,
		Transport:    h.Services.Transport,
		PollInterval: opts.PollInterval,
		Logger:       logger,
	}
	g.Go(func() error {
		return bootstrap.RunPartitioner(gctx, stageCfg, config.PartitionerConfig{Concurrency: 1})
	})
	g.Go(func() error {
		return bootstrap.RunProcessor(gctx, stageCfg, bootstrap.ProcessorConfig{
			Config: config.ProcessorConfig{Concurrency: opts.Concurrency, MaxCachedJobs: 16},
		})
	})
	g.Go(func() error {
		return bootstrap.RunSink(gctx, stageCfg, config.SinkConfig{
			Concurrency:         opts.Concurrency,
			RecorderConcurrency: 1,
		})
	})
}

// Close stops the workers and the API server. Worker errors other than cancellation fail the test.
func (h *WorkflowTestHarness) Close() {
	h.t.Helper()
	h.cancel()
	err := h.group.Wait()
	h.Server.Close()
	h.closeRedis()
	if err != nil && !errors.Is(err, context.Canceled) {
		h.t.Fatalf("pipeline worker failed: %v", err)
	}
}

func (h *WorkflowTestHarness) closeRedis() {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Close(); err != nil {
		h.t.Logf("close redis: %v", err)
	}
}

// BaseURL returns the API server address.
func (h *WorkflowTestHarness) BaseURL() string {
	return h.Server.URL
}

// SeedFlowAndSink registers a flow running the given JMESPath expression and a dummy sink.
func (h *WorkflowTestHarness) SeedFlowAndSink(ctx context.Context, expression string) (flowID, sinkID int64) {
	h.t.Helper()
	flow, err := h.Services.Catalog.CreateFlow(ctx, &model.FlowRequest{
		Name:             fmt.Sprintf("flow-%d", time.Now().UnixNano()),
		Modules:          []model.FlowModule{{Name: "main", Source: expression}},
		InvocationMethod: "main",
	})
	if err != nil {
		h.t.Fatalf("create flow: %v", err)
	}
	sink, err := h.Services.Catalog.CreateSink(ctx, testutil.NewDummySinkRequest(fmt.Sprintf("sink-%d", time.Now().UnixNano())))
	if err != nil {
		h.t.Fatalf("create sink: %v", err)
	}
	return flow.ID, sink.ID
}

// SubmitJob uploads data and creates a job for it through the workers' state store.
func (h *WorkflowTestHarness) SubmitJob(ctx context.Context, data []byte, req *testutil.JobRequestBuilder) *model.Job {
	h.t.Helper()
	file, err := h.Store.UploadFile(ctx, data)
	if err != nil {
		h.t.Fatalf("upload data: %v", err)
	}
	job, err := h.Store.CreateJob(ctx, req.WithDataFile(file.ID).Build())
	if err != nil {
		h.t.Fatalf("create job: %v", err)
	}
	return job
}

// WaitForCompletion polls the job until it is completed or timeout passes.
func (h *WorkflowTestHarness) WaitForCompletion(ctx context.Context, jobID int64, timeout time.Duration) *model.Job {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	var last *model.Job
	for time.Now().Before(deadline) {
		job, err := h.Store.GetJob(ctx, jobID)
		if err != nil {
			h.t.Fatalf("get job %d: %v", jobID, err)
		}
		if job.Completed() {
			return job
		}
		last = job
		time.Sleep(25 * time.Millisecond)
	}
	if last != nil {
		h.t.Fatalf("job %d not completed after %s: eoj=%t state=%+v", jobID, timeout, last.EOJ, last.State)
	}
	h.t.Fatalf("job %d not completed after %s", jobID, timeout)
	return nil
}

// WithWorkflowHarness runs fn against a running pipeline on a test database, skipping when
// the database (or Redis, if requested) is unavailable.
func WithWorkflowHarness(t testutil.TestingTB, opts WorkflowTestOptions, fn func(*WorkflowTestHarness)) {
	t.Helper()
	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := NewWorkflowTestHarness(t, db, opts)
		defer h.Close()
		fn(h)
	})
}
