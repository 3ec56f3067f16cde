package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/testutil"
)

type testRepos struct {
	jobs   *JobRepo
	chunks *ChunkRepo
	flows  *FlowRepo
	sinks  *SinkRepo
	files  *FileRepo
}

func newTestRepos(db *sql.DB, cfg RepoConfig) testRepos {
	return testRepos{
		jobs:   NewJobRepo(db, cfg),
		chunks: NewChunkRepo(db, cfg),
		flows:  NewFlowRepo(db, cfg),
		sinks:  NewSinkRepo(db, cfg),
		files:  NewFileRepo(db, cfg),
	}
}

// seedFlowAndSink creates a flow and a dummy sink and returns their ids.
func seedFlowAndSink(t *testing.T, r testRepos) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	flow, err := r.flows.Create(ctx, testutil.NewFlowRequest("identity"))
	require.NoError(t, err)
	sink, err := r.sinks.Create(ctx, testutil.NewDummySinkRequest("null"))
	require.NoError(t, err)
	return flow.ID, sink.ID
}

func seedJob(t *testing.T, r testRepos, flowID, sinkID int64) *model.Job {
	t.Helper()
	job, err := r.jobs.Create(context.Background(), testutil.NewJobRequest(flowID, sinkID).Build())
	require.NoError(t, err)
	return job
}
