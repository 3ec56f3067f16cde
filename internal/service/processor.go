package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/transform"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// ProcessorServiceOptions groups dependencies for ProcessorService.
type ProcessorServiceOptions struct {
	Store     core.StateStore     // Required
	Transport messaging.Transport // Required: processed results are published here
	// FlowCache shares loaded flows between processor instances. Optional.
	FlowCache     transform.FlowCache
	FlowCacheTTL  time.Duration
	MaxCachedJobs int
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// ProcessorService runs flows over announced chunks, records the processing result and
// hands it to the job's sink.
type ProcessorService struct {
	store     core.StateStore
	engine    *transform.Engine
	transport messaging.Transport
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewProcessorService constructs a ProcessorService.
func NewProcessorService(opts ProcessorServiceOptions) (*ProcessorService, error) {
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var flows transform.FlowLoader = opts.Store
	if opts.FlowCache != nil {
		flows = transform.NewCachingFlowLoader(opts.Store, opts.FlowCache, opts.FlowCacheTTL, logger)
	}
	engine, err := transform.NewEngine(transform.EngineOptions{
		Chunks:        opts.Store,
		Jobs:          opts.Store,
		Flows:         flows,
		Logger:        logger,
		Metrics:       opts.Metrics,
		MaxCachedJobs: opts.MaxCachedJobs,
	})
	if err != nil {
		return nil, fmt.Errorf("create transform engine: %w", err)
	}
	return &ProcessorService{
		store:     opts.Store,
		engine:    engine,
		transport: opts.Transport,
		logger:    logger.With("component", "processor"),
		metrics:   opts.Metrics,
	}, nil
}

// HandleChunk implements messaging.HandlerFunc for Chunk messages.
func (s *ProcessorService) HandleChunk(ctx context.Context, msg *messaging.Message) error {
	notice, err := messaging.Decode[model.ChunkNotice](msg)
	if err != nil {
		return err
	}
	start := time.Now()
	result, err := s.Process(ctx, notice.JobID, notice.ChunkID)
	items := 0
	if result != nil {
		items = len(result.Items)
	}
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:     StageProcessor,
		Operation: "process_chunk",
		Result:    metrics.ResultFor(err),
		Items:     items,
		Duration:  time.Since(start),
		Err:       err,
	})
	return err
}

// Process transforms one chunk, records the result and publishes it for delivery.
// A replayed chunk whose result is already recorded is published again, since the
// earlier attempt may have stopped before publishing; delivery recording is idempotent.
func (s *ProcessorService) Process(ctx context.Context, jobID int64, chunkID int) (*model.ChunkResult, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, stageError(fmt.Errorf("get job %d: %w", jobID, err))
	}
	if job.Completed() {
		s.engine.Forget(jobID)
		s.logger.InfoContext(ctx, "skipping chunk of completed job", "job_id", jobID, "chunk_id", chunkID)
		return nil, nil
	}

	result, err := s.engine.Process(ctx, jobID, chunkID)
	if err != nil {
		return nil, stageError(err)
	}

	recorded, err := s.store.RecordProcessedChunk(ctx, result)
	if err != nil {
		return nil, stageError(fmt.Errorf("record processed chunk %d/%d: %w", jobID, chunkID, err))
	}
	if !recorded {
		s.logger.InfoContext(ctx, "processed chunk already recorded", "job_id", jobID, "chunk_id", chunkID)
	}

	resource := model.SinkResource(job.SinkID)
	if err := publishFrom(ctx, s.transport, StageProcessor, messaging.PayloadChunkResult, resource, result); err != nil {
		return nil, fmt.Errorf("publish processed chunk %d/%d: %w", jobID, chunkID, err)
	}

	succeeded, failed, ignored := result.Counts()
	s.logger.DebugContext(ctx, "chunk processed",
		"job_id", jobID,
		"chunk_id", chunkID,
		"succeeded", succeeded,
		"failed", failed,
		"ignored", ignored,
	)
	return result, nil
}
