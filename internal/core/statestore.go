package core

import (
	"context"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
)

// StateStore is the job store API pipeline stages and harvesters talk to. It is served
// in-process by service.StateStoreService and remotely by the statestoreclient adapter.
type StateStore interface {
	CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.JobListOptions) (*model.JobPage, error)
	ApplyJobStateChange(ctx context.Context, jobID int64, c state.Change) (*model.Job, error)
	MarkPartitioned(ctx context.Context, jobID int64) (*model.Job, error)

	AddChunk(ctx context.Context, pc model.PartitionedChunk) (*model.Chunk, error)
	GetChunk(ctx context.Context, jobID int64, chunkID int) (*model.Chunk, error)
	GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error)
	ApplyChunkStateChange(ctx context.Context, jobID int64, chunkID int, c state.Change) (*model.Chunk, error)
	RecordProcessedChunk(ctx context.Context, result *model.ChunkResult) (bool, error)
	RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error)

	GetFlow(ctx context.Context, id, version int64) (*model.Flow, error)
	GetSink(ctx context.Context, id int64) (*model.SinkConfig, error)

	GetHarvesterConfig(ctx context.Context, id int64) (*model.HarvesterConfig, error)
	UpdateHarvesterConfig(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error)

	UploadFile(ctx context.Context, data []byte) (*model.File, error)
	GetFileData(ctx context.Context, id string) ([]byte, error)
}
