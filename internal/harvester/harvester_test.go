package harvester

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/mocks"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSource serves fixed lines. When block is set, Pull waits for it to close.
type stubSource struct {
	hasNew bool
	lines  string
	files  int
	cursor time.Time
	err    error
	block  chan struct{}
}

func (s *stubSource) HasNewData(context.Context, *time.Time) (bool, error) {
	return s.hasNew, s.err
}

func (s *stubSource) Pull(ctx context.Context, _ *time.Time, _ model.DataFormat, w io.Writer) (Pulled, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return Pulled{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Pulled{}, s.err
	}
	if _, err := io.WriteString(w, s.lines); err != nil {
		return Pulled{}, err
	}
	records := 0
	for _, c := range s.lines {
		if c == '\n' {
			records++
		}
	}
	return Pulled{Files: s.files, Records: records, Cursor: s.cursor}, nil
}

type fixture struct {
	store      *mocks.MockStateStore
	wal        *WAL
	stagingDir string
	harvester  *Harvester
}

func newFixture(t *testing.T, src Source) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStateStore(ctrl)
	root := t.TempDir()
	wal, err := OpenWAL(filepath.Join(root, "wal"), 1)
	require.NoError(t, err)
	staging := filepath.Join(root, "staging")
	h, err := New(Options{
		ID:         1,
		Name:       "daily",
		Store:      store,
		Source:     src,
		WAL:        wal,
		StagingDir: staging,
		Now:        func() time.Time { return testNow },
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return &fixture{store: store, wal: wal, stagingDir: staging, harvester: h}
}

func (f *fixture) stagingFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.stagingDir, "*"))
	require.NoError(t, err)
	return matches
}

func harvesterConfig(version int64) *model.HarvesterConfig {
	return &model.HarvesterConfig{
		ID:       1,
		Name:     "daily",
		Enabled:  true,
		Schedule: "@daily",
		Specification: model.JobSpecification{
			Format:      model.FormatLines,
			Destination: "catalog",
			Submitter:   870970,
			Kind:        model.JobKindPersistent,
		},
		FlowID:  3,
		SinkID:  4,
		Version: version,
	}
}

func expectJobCreated(f *fixture, data string, jobID int64) {
	upload := f.store.EXPECT().UploadFile(gomock.Any(), []byte(data)).
		Return(&model.File{ID: "file-1", Size: int64(len(data))}, nil)
	f.store.EXPECT().CreateJob(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			if req.Specification.DataFile != "file-1" || req.HarvesterID == nil || *req.HarvesterID != 1 {
				return nil, errors.New("unexpected create job request")
			}
			return &model.Job{ID: jobID, Specification: req.Specification, FlowID: req.FlowID, SinkID: req.SinkID}, nil
		}).After(upload)
}

func TestHarvester_RunCreatesJobAndPushesConfig(t *testing.T) {
	cursor := testNow.Add(-time.Hour)
	f := newFixture(t, &stubSource{hasNew: true, lines: "a\nb\n", files: 1, cursor: cursor})
	ctx := context.Background()

	expectJobCreated(f, "a\nb\n", 42)
	f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
			assert.Equal(t, int64(5), cfg.Version)
			require.NotNil(t, cfg.NextPublicationDate)
			assert.True(t, cursor.Equal(*cfg.NextPublicationDate))
			require.NotNil(t, cfg.LastHarvested)
			assert.True(t, testNow.Equal(*cfg.LastHarvested))
			out := *cfg
			out.Version++
			return &out, nil
		})

	result, err := f.harvester.Run(ctx, harvesterConfig(5))
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.Equal(t, int64(42), result.Job.ID)
	assert.False(t, result.Recovered)
	assert.Equal(t, 2, result.Pulled.Records)
	assert.Equal(t, int64(6), result.Config.Version)

	entry, err := f.wal.Read()
	require.NoError(t, err)
	assert.Nil(t, entry, "wal is committed")
	assert.Empty(t, f.stagingFiles(t), "staging file is removed")
}

func TestHarvester_ConfigConflictRetriesOnce(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: true, lines: "a\n", files: 1, cursor: testNow})
	ctx := context.Background()

	expectJobCreated(f, "a\n", 42)
	first := f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Conflictf("harvester config 1 version 5 is stale"))
	refresh := f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).
		Return(harvesterConfig(6), nil).After(first)
	f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
			assert.Equal(t, int64(6), cfg.Version, "retry carries the refreshed version")
			assert.NotNil(t, cfg.NextPublicationDate)
			out := *cfg
			out.Version = 7
			return &out, nil
		}).After(refresh)

	result, err := f.harvester.Run(ctx, harvesterConfig(5))
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Config.Version)
}

func TestHarvester_SecondConflictFailsRun(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: true, lines: "a\n", files: 1, cursor: testNow})
	ctx := context.Background()

	expectJobCreated(f, "a\n", 42)
	f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Conflictf("stale")).Times(2)
	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(6), nil).Times(1)

	_, err := f.harvester.Run(ctx, harvesterConfig(5))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	entry, err := f.wal.Read()
	require.NoError(t, err)
	assert.Nil(t, entry, "the job exists, so the wal stays committed")
}

func TestHarvester_OtherUpdateErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: true, lines: "a\n", files: 1, cursor: testNow})

	expectJobCreated(f, "a\n", 42)
	f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Validationf("schedule is required")).Times(1)

	_, err := f.harvester.Run(context.Background(), harvesterConfig(5))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestHarvester_CrashBeforeJobIsRecovered(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: true, lines: "a\nb\n", files: 1, cursor: testNow})
	ctx := context.Background()

	f.store.EXPECT().UploadFile(gomock.Any(), gomock.Any()).Return(nil, errors.New("store unavailable"))
	_, err := f.harvester.Run(ctx, harvesterConfig(5))
	require.ErrorContains(t, err, "store unavailable")

	entry, err := f.wal.Read()
	require.NoError(t, err)
	require.NotNil(t, entry, "the pending step survives the failure")
	assert.Equal(t, 2, entry.Records)
	_, err = os.Stat(entry.StagingFile)
	require.NoError(t, err, "the staged data survives the failure")

	// The next run redoes the pending step instead of pulling again.
	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(5), nil)
	expectJobCreated(f, "a\nb\n", 43)
	f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
			return cfg, nil
		})

	result, err := f.harvester.Run(ctx, harvesterConfig(5))
	require.NoError(t, err)
	assert.True(t, result.Recovered)
	assert.Equal(t, int64(43), result.Job.ID)

	entry, err = f.wal.Read()
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, f.stagingFiles(t))
}

func TestHarvester_RecoverWithoutEntryRemovesStaleStaging(t *testing.T) {
	f := newFixture(t, &stubSource{})
	require.NoError(t, os.MkdirAll(f.stagingDir, 0o750))
	stale := filepath.Join(f.stagingDir, "harvester-1-123.data")
	other := filepath.Join(f.stagingDir, "harvester-2-123.data")
	require.NoError(t, os.WriteFile(stale, []byte("x\n"), 0o600))
	require.NoError(t, os.WriteFile(other, []byte("x\n"), 0o600))

	result, err := f.harvester.Recover(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{other}, f.stagingFiles(t))
}

func TestHarvester_NoRecords(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		f := newFixture(t, &stubSource{})
		result, err := f.harvester.Run(context.Background(), harvesterConfig(5))
		require.NoError(t, err)
		assert.Nil(t, result.Job)
		assert.Empty(t, f.stagingFiles(t))
	})

	t.Run("empty files advance the cursor", func(t *testing.T) {
		f := newFixture(t, &stubSource{files: 2, cursor: testNow})
		f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
				assert.True(t, testNow.Equal(*cfg.NextPublicationDate))
				return cfg, nil
			})
		result, err := f.harvester.Run(context.Background(), harvesterConfig(5))
		require.NoError(t, err)
		assert.Nil(t, result.Job)
	})
}

func TestHarvester_SourceFailureLeavesNoEntry(t *testing.T) {
	f := newFixture(t, &stubSource{err: errors.New("upstream down")})
	_, err := f.harvester.Run(context.Background(), harvesterConfig(5))
	require.ErrorContains(t, err, "upstream down")

	entry, err := f.wal.Read()
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, f.stagingFiles(t))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{ID: 1})
	require.ErrorContains(t, err, "state store")
}
