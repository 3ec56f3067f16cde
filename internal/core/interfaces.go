// Package core declares the repository ports the service layer depends on.
package core

import (
	"context"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
)

// Repository interfaces (ports in hexagonal architecture). Services depend on these,
// never on internal/data directly.

// JobRepository defines job persistence.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id int64) (*model.Job, error)
	ApplyStateChange(ctx context.Context, jobID int64, c state.Change) (*model.Job, error)
	// MarkPartitioned sets eoj and ends the partitioning phase. Idempotent.
	MarkPartitioned(ctx context.Context, jobID int64) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Count(ctx context.Context, opts model.JobListOptions) (int64, error)
}

// ChunkRepository defines chunk and item persistence.
type ChunkRepository interface {
	InsertPartitionedChunk(ctx context.Context, pc model.PartitionedChunk) (*model.Chunk, error)
	GetChunk(ctx context.Context, jobID int64, chunkID int) (*model.Chunk, error)
	ListChunks(ctx context.Context, jobID int64, limit, offset int) ([]*model.Chunk, error)
	GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error)
	ApplyStateChange(ctx context.Context, jobID int64, chunkID int, c state.Change) (*model.Chunk, error)
	// RecordProcessedChunk and RecordDeliveredChunk report false for an identical replay.
	RecordProcessedChunk(ctx context.Context, result *model.ChunkResult) (bool, error)
	RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error)
}

// FlowRepository defines versioned flow persistence.
type FlowRepository interface {
	Create(ctx context.Context, req *model.FlowRequest) (*model.Flow, error)
	Update(ctx context.Context, id int64, req *model.FlowRequest) (*model.Flow, error)
	// Get returns version of flow id; version 0 means latest.
	Get(ctx context.Context, id, version int64) (*model.Flow, error)
	List(ctx context.Context) ([]*model.Flow, error)
}

// SinkRepository defines versioned sink configuration persistence.
type SinkRepository interface {
	Create(ctx context.Context, req *model.SinkRequest) (*model.SinkConfig, error)
	Update(ctx context.Context, id int64, req *model.SinkRequest) (*model.SinkConfig, error)
	Get(ctx context.Context, id int64) (*model.SinkConfig, error)
	List(ctx context.Context) ([]*model.SinkConfig, error)
}

// HarvesterConfigRepository defines optimistic harvester configuration persistence.
type HarvesterConfigRepository interface {
	Create(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error)
	Get(ctx context.Context, id int64) (*model.HarvesterConfig, error)
	List(ctx context.Context, enabledOnly bool) ([]*model.HarvesterConfig, error)
	// Update fails with a conflict when cfg.Version is stale.
	Update(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error)
}

// FileRepository defines uploaded data file persistence.
type FileRepository interface {
	Create(ctx context.Context, data []byte) (*model.File, error)
	Get(ctx context.Context, id string) (*model.File, error)
	GetData(ctx context.Context, id string) ([]byte, error)
	DeleteOrphans(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReaperRepository defines the cleanup operations run by the reaper.
type ReaperRepository interface {
	// PurgeDeadLetters deletes dead-lettered messages parked before cutoff.
	PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteOrphanFiles deletes uploaded files created before cutoff that no job references.
	DeleteOrphanFiles(ctx context.Context, cutoff time.Time) (int64, error)
	// ListStalledJobs returns ids of jobs created in [from, to) whose partitioning has not ended.
	ListStalledJobs(ctx context.Context, from, to time.Time, limit int) ([]int64, error)
}

// JobAnnouncer republishes the NewJob message of an existing job.
type JobAnnouncer interface {
	AnnounceJob(ctx context.Context, jobID int64) error
}
