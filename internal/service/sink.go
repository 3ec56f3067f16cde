package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/delivery"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// SinkServiceOptions groups dependencies for SinkService.
type SinkServiceOptions struct {
	Store     core.StateStore         // Required
	Adapters  delivery.AdapterFactory // Required
	Transport messaging.Transport     // Required: delivered results are published here
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// SinkService delivers processed chunks to their sink and records delivered results.
type SinkService struct {
	store       core.StateStore
	coordinator *delivery.Coordinator
	transport   messaging.Transport
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewSinkService constructs a SinkService.
func NewSinkService(opts SinkServiceOptions) (*SinkService, error) {
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Adapters == nil {
		return nil, errors.New("adapter factory is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	coordinator, err := delivery.NewCoordinator(delivery.CoordinatorOptions{
		Factory:  opts.Adapters,
		Reporter: opts.Store,
		Logger:   logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create delivery coordinator: %w", err)
	}
	return &SinkService{
		store:       opts.Store,
		coordinator: coordinator,
		transport:   opts.Transport,
		logger:      logger.With("component", "sink"),
		metrics:     opts.Metrics,
	}, nil
}

func decodeResult(msg *messaging.Message, phase state.Phase) (*model.ChunkResult, error) {
	result, err := messaging.Decode[model.ChunkResult](msg)
	if err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, messaging.Fatal(err)
	}
	if result.Phase != phase {
		return nil, messaging.Fatal(fmt.Errorf("%s message carries a %s result", msg.Headers.PayloadType, result.Phase))
	}
	return &result, nil
}

// HandleChunkResult implements messaging.HandlerFunc for ChunkResult messages.
func (s *SinkService) HandleChunkResult(ctx context.Context, msg *messaging.Message) error {
	processed, err := decodeResult(msg, state.PhaseProcessing)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = s.Deliver(ctx, processed, msg.Headers.Resource)
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:     StageSink,
		Operation: "deliver_chunk",
		Result:    metrics.ResultFor(err),
		Items:     len(processed.Items),
		Duration:  time.Since(start),
		Err:       err,
	})
	return err
}

// Deliver sends a processed chunk to the sink named by resource, or to the job's sink
// when resource is empty, and publishes the delivered result.
func (s *SinkService) Deliver(ctx context.Context, processed *model.ChunkResult, resource string) (*model.ChunkResult, error) {
	sinkID, ok := model.ParseSinkResource(resource)
	if !ok {
		job, err := s.store.GetJob(ctx, processed.JobID)
		if err != nil {
			return nil, stageError(fmt.Errorf("get job %d: %w", processed.JobID, err))
		}
		sinkID = job.SinkID
	}
	sink, err := s.store.GetSink(ctx, sinkID)
	if err != nil {
		return nil, stageError(fmt.Errorf("get sink %d: %w", sinkID, err))
	}

	delivered, err := s.coordinator.Deliver(ctx, processed, sink)
	if err != nil {
		return nil, stageError(err)
	}
	if err := publishFrom(ctx, s.transport, StageSink, messaging.PayloadSinkChunkResult, model.SinkResource(sink.ID), delivered); err != nil {
		return nil, fmt.Errorf("publish delivered chunk %d/%d: %w", delivered.JobID, delivered.ChunkID, err)
	}
	s.logger.DebugContext(ctx, "chunk delivered",
		"job_id", delivered.JobID,
		"chunk_id", delivered.ChunkID,
		"sink_id", sink.ID,
		"sink_version", sink.Version,
	)
	return delivered, nil
}

// HandleSinkChunkResult implements messaging.HandlerFunc for SinkChunkResult messages.
// Results delivered by this service are already recorded and replay as no-ops; the
// handler exists for sinks running outside this process.
func (s *SinkService) HandleSinkChunkResult(ctx context.Context, msg *messaging.Message) error {
	delivered, err := decodeResult(msg, state.PhaseDelivering)
	if err != nil {
		return err
	}
	start := time.Now()
	recorded, err := s.store.RecordDeliveredChunk(ctx, delivered)
	result := metrics.ResultFor(err)
	if err == nil && !recorded {
		result = metrics.ResultNoop
	}
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:     StageRecorder,
		Operation: "record_delivered",
		Result:    result,
		Items:     len(delivered.Items),
		Duration:  time.Since(start),
		Err:       err,
	})
	if err != nil {
		return stageError(fmt.Errorf("record delivered chunk %d/%d: %w", delivered.JobID, delivered.ChunkID, err))
	}
	return nil
}
