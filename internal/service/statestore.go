package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// StateStoreRepos groups the repositories behind the state store.
type StateStoreRepos struct {
	Jobs       core.JobRepository             // Required
	Chunks     core.ChunkRepository           // Required
	Flows      core.FlowRepository            // Required
	Sinks      core.SinkRepository            // Required
	Harvesters core.HarvesterConfigRepository // Required
	Files      core.FileRepository            // Required
}

func (r StateStoreRepos) validate() error {
	switch {
	case r.Jobs == nil:
		return errors.New("JobRepository is required")
	case r.Chunks == nil:
		return errors.New("ChunkRepository is required")
	case r.Flows == nil:
		return errors.New("FlowRepository is required")
	case r.Sinks == nil:
		return errors.New("SinkRepository is required")
	case r.Harvesters == nil:
		return errors.New("HarvesterConfigRepository is required")
	case r.Files == nil:
		return errors.New("FileRepository is required")
	}
	return nil
}

// StateStoreServiceOptions groups dependencies for StateStoreService.
type StateStoreServiceOptions struct {
	Repos     StateStoreRepos     // Required
	Publisher messaging.Transport // Optional: announces new jobs to the partitioner
	Logger    *slog.Logger        // Optional
	Metrics   statsd.Sink         // Optional
}

// StateStoreService owns jobs, chunks and their state. Every state mutation goes through
// the repositories' optimistic version checks; this layer adds validation, job
// announcement and progress metrics.
type StateStoreService struct {
	repos     StateStoreRepos
	publisher messaging.Transport
	logger    *slog.Logger
	metrics   statsd.Sink
}

var _ core.StateStore = (*StateStoreService)(nil)

// NewStateStoreService constructs a StateStoreService.
func NewStateStoreService(opts StateStoreServiceOptions) (*StateStoreService, error) {
	if err := opts.Repos.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStoreService{
		repos:     opts.Repos,
		publisher: opts.Publisher,
		logger:    logger.With("component", "state_store"),
		metrics:   opts.Metrics,
	}, nil
}

// MustNewStateStoreService constructs a StateStoreService and panics on error.
func MustNewStateStoreService(opts StateStoreServiceOptions) *StateStoreService {
	svc, err := NewStateStoreService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create StateStoreService: %v", err))
	}
	return svc
}

// CreateJob registers a job against an uploaded data file and announces it to the partitioner.
// The job is returned even if the announcement fails; AnnounceJob can be retried.
func (s *StateStoreService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if _, err := s.repos.Files.Get(ctx, req.Specification.DataFile); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ValidationField("specification.data_file", "data file does not exist")
		}
		return nil, fmt.Errorf("check data file: %w", err)
	}

	job, err := s.repos.Jobs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"flow_id", job.FlowID, "flow_version", job.FlowVersion,
		"sink_id", job.SinkID, "sink_version", job.SinkVersion,
		"kind", job.Specification.Kind,
	)

	if err := s.AnnounceJob(ctx, job.ID); err != nil {
		s.logger.ErrorContext(ctx, "job announcement failed", "job_id", job.ID, "error", err)
		s.count("statestore.announce_failed", nil)
	}
	return job, nil
}

// AnnounceJob publishes a NewJob message for jobID. Without a publisher it is a no-op.
func (s *StateStoreService) AnnounceJob(ctx context.Context, jobID int64) error {
	if s.publisher == nil {
		return nil
	}
	_, err := messaging.Publish(ctx, s.publisher,
		messaging.Headers{Source: "statestore", PayloadType: messaging.PayloadNewJob},
		model.NewJobNotice{JobID: jobID})
	return err
}

// GetJob returns a job by id.
func (s *StateStoreService) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	return s.repos.Jobs.GetByID(ctx, id)
}

// ListJobs returns one page of jobs matching opts and the total match count.
func (s *StateStoreService) ListJobs(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	jobs, err := s.repos.Jobs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	total, err := s.repos.Jobs.Count(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return &model.JobPage{Jobs: jobs, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// ApplyJobStateChange applies a state change to a job.
func (s *StateStoreService) ApplyJobStateChange(ctx context.Context, jobID int64, c state.Change) (*model.Job, error) {
	job, err := s.repos.Jobs.ApplyStateChange(ctx, jobID, c)
	if err != nil {
		s.logRejected(ctx, err, "job_id", jobID, "phase", c.Phase)
		return nil, err
	}
	metrics.EmitJobProgress(s.metrics, job)
	return job, nil
}

// MarkPartitioned records that every chunk of the job has been stored.
func (s *StateStoreService) MarkPartitioned(ctx context.Context, jobID int64) (*model.Job, error) {
	job, err := s.repos.Jobs.MarkPartitioned(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job partitioned",
		"job_id", jobID, "chunks", job.NumberOfChunks, "items", job.NumberOfItems)
	s.observeCompletion(ctx, job)
	return job, nil
}

// AddChunk stores a partitioned chunk with its items.
func (s *StateStoreService) AddChunk(ctx context.Context, pc model.PartitionedChunk) (*model.Chunk, error) {
	return s.repos.Chunks.InsertPartitionedChunk(ctx, pc)
}

// GetChunk returns one chunk.
func (s *StateStoreService) GetChunk(ctx context.Context, jobID int64, chunkID int) (*model.Chunk, error) {
	return s.repos.Chunks.GetChunk(ctx, jobID, chunkID)
}

// ListChunks returns a page of chunks of a job.
func (s *StateStoreService) ListChunks(ctx context.Context, jobID int64, limit, offset int) ([]*model.Chunk, error) {
	if _, err := s.repos.Jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repos.Chunks.ListChunks(ctx, jobID, limit, offset)
}

// GetChunkItems returns the items of a chunk in item order.
func (s *StateStoreService) GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error) {
	return s.repos.Chunks.GetChunkItems(ctx, jobID, chunkID)
}

// ApplyChunkStateChange applies a state change to one chunk.
func (s *StateStoreService) ApplyChunkStateChange(ctx context.Context, jobID int64, chunkID int, c state.Change) (*model.Chunk, error) {
	chunk, err := s.repos.Chunks.ApplyStateChange(ctx, jobID, chunkID, c)
	if err != nil {
		s.logRejected(ctx, err, "job_id", jobID, "chunk_id", chunkID, "phase", c.Phase)
		return nil, err
	}
	return chunk, nil
}

// RecordProcessedChunk stores processing outcomes. It reports false for a replay.
func (s *StateStoreService) RecordProcessedChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	recorded, err := s.repos.Chunks.RecordProcessedChunk(ctx, result)
	if err != nil {
		s.logRejected(ctx, err, "job_id", result.JobID, "chunk_id", result.ChunkID, "phase", state.PhaseProcessing)
		return false, err
	}
	s.count("statestore.chunk_recorded", map[string]string{
		"phase":  string(state.PhaseProcessing),
		"replay": fmt.Sprint(!recorded),
	})
	return recorded, nil
}

// RecordDeliveredChunk stores delivering outcomes and completes the job when its last
// item is delivered. It reports false for a replay.
func (s *StateStoreService) RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	recorded, err := s.repos.Chunks.RecordDeliveredChunk(ctx, result)
	if err != nil {
		s.logRejected(ctx, err, "job_id", result.JobID, "chunk_id", result.ChunkID, "phase", state.PhaseDelivering)
		return false, err
	}
	s.count("statestore.chunk_recorded", map[string]string{
		"phase":  string(state.PhaseDelivering),
		"replay": fmt.Sprint(!recorded),
	})
	if !recorded {
		return false, nil
	}
	job, err := s.repos.Jobs.GetByID(ctx, result.JobID)
	if err != nil {
		// The result is stored; progress reporting is best effort.
		s.logger.WarnContext(ctx, "reload job after delivery failed", "job_id", result.JobID, "error", err)
		return true, nil
	}
	s.observeCompletion(ctx, job)
	return true, nil
}

// GetFlow returns a flow version; 0 means latest.
func (s *StateStoreService) GetFlow(ctx context.Context, id, version int64) (*model.Flow, error) {
	return s.repos.Flows.Get(ctx, id, version)
}

// GetSink returns the current sink configuration.
func (s *StateStoreService) GetSink(ctx context.Context, id int64) (*model.SinkConfig, error) {
	return s.repos.Sinks.Get(ctx, id)
}

// GetHarvesterConfig returns a harvester configuration with its version.
func (s *StateStoreService) GetHarvesterConfig(ctx context.Context, id int64) (*model.HarvesterConfig, error) {
	return s.repos.Harvesters.Get(ctx, id)
}

// UpdateHarvesterConfig stores cfg if cfg.Version is current, otherwise it returns a conflict.
func (s *StateStoreService) UpdateHarvesterConfig(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	updated, err := s.repos.Harvesters.Update(ctx, cfg)
	if err != nil {
		if apperrors.IsConflict(err) {
			s.logger.InfoContext(ctx, "harvester config update lost a version race",
				"harvester_id", cfg.ID, "version", cfg.Version)
		}
		return nil, err
	}
	return updated, nil
}

// UploadFile stores raw job data and returns its descriptor.
func (s *StateStoreService) UploadFile(ctx context.Context, data []byte) (*model.File, error) {
	if len(data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}
	f, err := s.repos.Files.Create(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	s.logger.DebugContext(ctx, "file uploaded", "file_id", f.ID, "size", f.Size)
	return f, nil
}

// GetFile returns a file descriptor.
func (s *StateStoreService) GetFile(ctx context.Context, id string) (*model.File, error) {
	return s.repos.Files.Get(ctx, id)
}

// GetFileData returns the raw bytes of a file.
func (s *StateStoreService) GetFileData(ctx context.Context, id string) ([]byte, error) {
	return s.repos.Files.GetData(ctx, id)
}

func (s *StateStoreService) observeCompletion(ctx context.Context, job *model.Job) {
	metrics.EmitJobProgress(s.metrics, job)
	if job.Completed() {
		s.logger.InfoContext(ctx, "job completed",
			"job_id", job.ID,
			"items", job.NumberOfItems,
			"failed", job.State.Processing.Failed+job.State.Delivering.Failed,
		)
	}
}

// logRejected logs ordering violations at ERROR; they are never retried.
func (s *StateStoreService) logRejected(ctx context.Context, err error, attrs ...any) {
	if errors.Is(err, state.ErrPhaseOrderingViolation) {
		s.logger.ErrorContext(ctx, "phase ordering violation", append(attrs, "error", err)...)
		return
	}
	if errors.Is(err, state.ErrInvalidStateChange) {
		s.logger.WarnContext(ctx, "invalid state change rejected", append(attrs, "error", err)...)
	}
}

func (s *StateStoreService) count(name string, tags map[string]string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count(name, 1, tags)
}
