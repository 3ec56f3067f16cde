package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/messaging"
	"github.com/target/dataio-go/internal/mocks"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/testutil"
	"go.uber.org/mock/gomock"
)

type stateStoreMocks struct {
	jobs       *mocks.MockJobRepository
	chunks     *mocks.MockChunkRepository
	flows      *mocks.MockFlowRepository
	sinks      *mocks.MockSinkRepository
	harvesters *mocks.MockHarvesterConfigRepository
	files      *mocks.MockFileRepository
}

func newStateStoreUnderTest(t *testing.T, publisher messaging.Transport, sink statsd.Sink) (*StateStoreService, stateStoreMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := stateStoreMocks{
		jobs:       mocks.NewMockJobRepository(ctrl),
		chunks:     mocks.NewMockChunkRepository(ctrl),
		flows:      mocks.NewMockFlowRepository(ctrl),
		sinks:      mocks.NewMockSinkRepository(ctrl),
		harvesters: mocks.NewMockHarvesterConfigRepository(ctrl),
		files:      mocks.NewMockFileRepository(ctrl),
	}
	svc, err := NewStateStoreService(StateStoreServiceOptions{
		Repos: StateStoreRepos{
			Jobs: m.jobs, Chunks: m.chunks, Flows: m.flows,
			Sinks: m.sinks, Harvesters: m.harvesters, Files: m.files,
		},
		Publisher: publisher,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   sink,
	})
	require.NoError(t, err)
	return svc, m
}

func TestNewStateStoreService_RequiresRepos(t *testing.T) {
	_, err := NewStateStoreService(StateStoreServiceOptions{})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewStateStoreService(StateStoreServiceOptions{}) })
}

func TestStateStoreService_CreateJob_AnnouncesToPartitioner(t *testing.T) {
	ctx := context.Background()
	transport := messaging.NewMemoryTransport()
	svc, m := newStateStoreUnderTest(t, transport, nil)

	req := testutil.NewJobRequest(1, 2).Build()
	m.files.EXPECT().Get(ctx, req.Specification.DataFile).Return(&model.File{ID: req.Specification.DataFile}, nil)
	m.jobs.EXPECT().Create(ctx, req).Return(&model.Job{ID: 42, FlowID: 1, SinkID: 2, Specification: req.Specification}, nil)

	job, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.ID)
	require.Equal(t, 1, transport.Len(messaging.QueuePartitioning))

	d, err := transport.Receive(ctx, messaging.QueuePartitioning)
	require.NoError(t, err)
	assert.Equal(t, messaging.PayloadNewJob, d.Envelope.Headers.PayloadType)
	assert.JSONEq(t, `{"job_id":42}`, string(d.Envelope.Body))
}

func TestStateStoreService_CreateJob_Validation(t *testing.T) {
	ctx := context.Background()
	svc, m := newStateStoreUnderTest(t, nil, nil)

	_, err := svc.CreateJob(ctx, testutil.NewJobRequest(0, 2).Build())
	assert.True(t, apperrors.IsValidation(err), "got %v", err)

	req := testutil.NewJobRequest(1, 2).Build()
	m.files.EXPECT().Get(ctx, req.Specification.DataFile).Return(nil, apperrors.NotFound("file"))
	_, err = svc.CreateJob(ctx, req)
	assert.True(t, apperrors.IsValidation(err), "got %v", err)
	assert.Equal(t, "specification.data_file", apperrors.GetField(err))
}

type failingPublisher struct{ messaging.Transport }

func (failingPublisher) Publish(context.Context, string, *messaging.Envelope) error {
	return errors.New("broker down")
}

func TestStateStoreService_CreateJob_AnnouncementFailureKeepsJob(t *testing.T) {
	ctx := context.Background()
	var rec statsd.Recorder
	svc, m := newStateStoreUnderTest(t, failingPublisher{}, &rec)

	req := testutil.NewJobRequest(1, 2).Build()
	m.files.EXPECT().Get(ctx, gomock.Any()).Return(&model.File{}, nil)
	m.jobs.EXPECT().Create(ctx, req).Return(&model.Job{ID: 5}, nil)

	job, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), job.ID)
	assert.Equal(t, float64(1), rec.Sum("statestore.announce_failed"))
	assert.Error(t, svc.AnnounceJob(ctx, 5))
}

func TestStateStoreService_ListJobs_ClampsPaging(t *testing.T) {
	ctx := context.Background()
	svc, m := newStateStoreUnderTest(t, nil, nil)

	want := model.JobListOptions{Limit: 100, Offset: 0}
	m.jobs.EXPECT().List(ctx, want).Return(nil, nil)
	m.jobs.EXPECT().Count(ctx, want).Return(int64(0), nil)

	page, err := svc.ListJobs(ctx, model.JobListOptions{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.NotNil(t, page.Jobs)
	assert.Equal(t, 100, page.Limit)
}

func TestStateStoreService_RecordDeliveredChunk(t *testing.T) {
	ctx := context.Background()
	var rec statsd.Recorder
	svc, m := newStateStoreUnderTest(t, nil, &rec)
	result := testutil.NewChunkResult(3, 0, state.PhaseDelivering, model.ItemSuccess)

	done := testutil.TestTime()
	completed := &model.Job{
		ID:            3,
		EOJ:           true,
		Specification: model.JobSpecification{Kind: model.JobKindPersistent},
		CreatedAt:     done.Add(-time.Minute),
		CompletedAt:   &done,
	}
	gomock.InOrder(
		m.chunks.EXPECT().RecordDeliveredChunk(ctx, result).Return(true, nil),
		m.jobs.EXPECT().GetByID(ctx, int64(3)).Return(completed, nil),
		m.chunks.EXPECT().RecordDeliveredChunk(ctx, result).Return(false, nil),
	)

	recorded, err := svc.RecordDeliveredChunk(ctx, result)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, float64(1), rec.Sum("job.completed"))

	// A replay does not reload the job.
	recorded, err = svc.RecordDeliveredChunk(ctx, result)
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, float64(2), rec.Sum("statestore.chunk_recorded"))
}

func TestStateStoreService_ApplyStateChangeErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	svc, m := newStateStoreUnderTest(t, nil, nil)

	end := testutil.TestTime()
	change := state.Change{Phase: state.PhaseDelivering, EndDate: &end}
	ordering := apperrors.Wrap(state.ErrPhaseOrderingViolation, apperrors.ErrCodePhaseOrdering, "job 1")
	m.jobs.EXPECT().ApplyStateChange(ctx, int64(1), change).Return(nil, ordering)
	m.chunks.EXPECT().ApplyStateChange(ctx, int64(1), 0, change).Return(nil, ordering)

	_, err := svc.ApplyJobStateChange(ctx, 1, change)
	assert.ErrorIs(t, err, state.ErrPhaseOrderingViolation)
	_, err = svc.ApplyChunkStateChange(ctx, 1, 0, change)
	assert.Equal(t, apperrors.ErrCodePhaseOrdering, apperrors.GetCode(err))
}

func TestStateStoreService_UpdateHarvesterConfig(t *testing.T) {
	ctx := context.Background()
	svc, m := newStateStoreUnderTest(t, nil, nil)

	_, err := svc.UpdateHarvesterConfig(ctx, &model.HarvesterConfig{})
	assert.True(t, apperrors.IsValidation(err))

	cfg := &model.HarvesterConfig{
		ID: 1, Name: "oai", Schedule: "@daily", FlowID: 1, SinkID: 1, Version: 3,
		Specification: model.JobSpecification{Format: model.FormatLines},
	}
	m.harvesters.EXPECT().Update(ctx, cfg).Return(nil, apperrors.Conflict("stale"))
	_, err = svc.UpdateHarvesterConfig(ctx, cfg)
	assert.True(t, apperrors.IsConflict(err))
}

func TestStateStoreService_UploadFileRejectsEmpty(t *testing.T) {
	svc, _ := newStateStoreUnderTest(t, nil, nil)
	_, err := svc.UploadFile(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStateStoreService_ListChunksChecksJob(t *testing.T) {
	ctx := context.Background()
	svc, m := newStateStoreUnderTest(t, nil, nil)
	m.jobs.EXPECT().GetByID(ctx, int64(9)).Return(nil, apperrors.NotFound("job 9"))

	_, err := svc.ListChunks(ctx, 9, 10, 0)
	assert.True(t, apperrors.IsNotFound(err))
}
