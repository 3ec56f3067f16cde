package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/partition"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// PartitionerServiceOptions groups dependencies for PartitionerService.
type PartitionerServiceOptions struct {
	Store     core.StateStore     // Required
	Transport messaging.Transport // Required: chunk notices are published here
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// PartitionerService turns announced jobs into stored chunks and announces each chunk
// to the processors.
type PartitionerService struct {
	store     core.StateStore
	transport messaging.Transport
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewPartitionerService constructs a PartitionerService.
func NewPartitionerService(opts PartitionerServiceOptions) (*PartitionerService, error) {
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
	return &PartitionerService{
		store:     opts.Store,
		transport: opts.Transport,
		logger:    logger.With("component", "partitioner"),
		metrics:   opts.Metrics,
	}, nil
}

// HandleNewJob implements messaging.HandlerFunc for NewJob messages.
func (s *PartitionerService) HandleNewJob(ctx context.Context, msg *messaging.Message) error {
	notice, err := messaging.Decode[model.NewJobNotice](msg)
	if err != nil {
		return err
	}
	start := time.Now()
	summary, err := s.Partition(ctx, notice.JobID)
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:     StagePartitioner,
		Operation: "partition_job",
		Result:    metrics.ResultFor(err),
		Items:     summary.Items,
		Duration:  time.Since(start),
		Err:       err,
	})
	return err
}

// Partition splits the job's data file into chunks. Running it again for a job whose
// chunks are partly or fully stored re-announces the stored chunks and stores the rest;
// a job that has already ended partitioning is left alone.
func (s *PartitionerService) Partition(ctx context.Context, jobID int64) (partition.Summary, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return partition.Summary{}, stageError(fmt.Errorf("get job %d: %w", jobID, err))
	}
	if job.EOJ && job.State.Partitioning.Ended() {
		s.logger.InfoContext(ctx, "job already partitioned", "job_id", jobID)
		return partition.Summary{Chunks: job.NumberOfChunks, Items: job.NumberOfItems}, nil
	}

	p, err := partition.New(job.Specification)
	if err != nil {
		return partition.Summary{}, messaging.Fatal(fmt.Errorf("job %d: %w", jobID, err))
	}
	data, err := s.store.GetFileData(ctx, job.Specification.DataFile)
	if err != nil {
		return partition.Summary{}, stageError(fmt.Errorf("get data file %s: %w", job.Specification.DataFile, err))
	}

	var emitErr error
	summary, err := p.Partition(jobID, bytes.NewReader(data), func(pc model.PartitionedChunk) error {
		emitErr = s.storeChunk(ctx, pc)
		return emitErr
	})
	if err != nil {
		if emitErr != nil {
			return summary, emitErr
		}
		// The data itself is unreadable.
		return summary, messaging.Fatal(fmt.Errorf("partition job %d: %w", jobID, err))
	}

	if _, err := s.store.MarkPartitioned(ctx, jobID); err != nil {
		return summary, stageError(fmt.Errorf("mark job %d partitioned: %w", jobID, err))
	}
	s.logger.InfoContext(ctx, "job partitioned",
		"job_id", jobID,
		"chunks", summary.Chunks,
		"items", summary.Items,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (s *PartitionerService) storeChunk(ctx context.Context, pc model.PartitionedChunk) error {
	chunk, err := s.store.AddChunk(ctx, pc)
	if err != nil {
		return stageError(fmt.Errorf("add chunk %d/%d: %w", pc.Chunk.JobID, pc.Chunk.ChunkID, err))
	}
	notice := model.ChunkNotice{JobID: chunk.JobID, ChunkID: chunk.ChunkID}
	if err := publishFrom(ctx, s.transport, StagePartitioner, messaging.PayloadChunk, "", notice); err != nil {
		return fmt.Errorf("announce chunk %d/%d: %w", chunk.JobID, chunk.ChunkID, err)
	}
	s.logger.DebugContext(ctx, "chunk stored",
		"job_id", chunk.JobID, "chunk_id", chunk.ChunkID, "items", chunk.NumberOfItems)
	return nil
}
