package reaper

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/data/testhelpers"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/testutil"
)

func TestNewRunner_RequiresDatabase(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: config.ReaperConfig{Interval: time.Minute}})
	require.Error(t, err)
}

func TestRepository_ListStalledJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		created := testutil.TestTime()
		clock := data.NewFixedTimeProvider(created)
		repos := testhelpers.NewReposWithTimeProvider(db, data.RepoConfig{}, clock)

		flow, err := repos.Flows.Create(ctx, testutil.NewFlowRequest("identity"))
		require.NoError(t, err)
		sink, err := repos.Sinks.Create(ctx, testutil.NewDummySinkRequest("null"))
		require.NoError(t, err)

		stalled, err := repos.Jobs.Create(ctx, testutil.NewJobRequest(flow.ID, sink.ID).Build())
		require.NoError(t, err)
		partitioned, err := repos.Jobs.Create(ctx, testutil.NewJobRequest(flow.ID, sink.ID).Build())
		require.NoError(t, err)
		_, err = repos.Jobs.MarkPartitioned(ctx, partitioned.ID)
		require.NoError(t, err)
		_, err = repos.Jobs.Create(ctx, testutil.NewJobRequest(flow.ID, sink.ID).WithKind(model.JobKindTest).Build())
		require.NoError(t, err)

		repo := NewRepository(db, data.RepoConfig{})
		ids, err := repo.ListStalledJobs(ctx, created.Add(-time.Minute), created.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{stalled.ID}, ids)

		ids, err = repo.ListStalledJobs(ctx, created.Add(time.Minute), created.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestRepository_DeleteOrphanFiles(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		files := data.NewFileRepo(db, data.RepoConfig{})
		f, err := files.Create(ctx, []byte("a\nb\n"))
		require.NoError(t, err)

		repo := NewRepository(db, data.RepoConfig{})
		n, err := repo.DeleteOrphanFiles(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = files.Get(ctx, f.ID)
		require.Error(t, err)
	})
}
