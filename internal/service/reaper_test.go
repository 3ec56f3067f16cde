package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	mu sync.Mutex

	purgeCalls  int
	purgeCutoff time.Time
	purgeCount  int64
	purgeErr    error

	orphanCalls  int
	orphanCutoff time.Time
	orphanCount  int64
	orphanErr    error

	stalledFrom, stalledTo time.Time
	stalledLimit           int
	stalledIDs             []int64
	stalledErr             error
}

func (m *mockReaperRepo) PurgeDeadLetters(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	m.purgeCutoff = cutoff
	return m.purgeCount, m.purgeErr
}

func (m *mockReaperRepo) DeleteOrphanFiles(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphanCalls++
	m.orphanCutoff = cutoff
	return m.orphanCount, m.orphanErr
}

func (m *mockReaperRepo) ListStalledJobs(_ context.Context, from, to time.Time, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalledFrom, m.stalledTo, m.stalledLimit = from, to, limit
	return m.stalledIDs, m.stalledErr
}

func (m *mockReaperRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeCalls
}

type recordingAnnouncer struct {
	ids  []int64
	fail map[int64]error
}

func (a *recordingAnnouncer) AnnounceJob(_ context.Context, id int64) error {
	if err := a.fail[id]; err != nil {
		return err
	}
	a.ids = append(a.ids, id)
	return nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:         5 * time.Minute,
		DeadLetterMaxAge: 14 * 24 * time.Hour,
		OrphanFileMaxAge: 24 * time.Hour,
		StalledJobAge:    time.Hour,
		BatchSize:        100,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("runs all cleanup operations with derived cutoffs", func(t *testing.T) {
		repo := &mockReaperRepo{purgeCount: 3, orphanCount: 2, stalledIDs: []int64{7, 9}}
		announcer := &recordingAnnouncer{}
		rec := &statsd.Recorder{}

		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Announcer: announcer,
			Config:    testReaperConfig(),
			Metrics:   rec,
			Now:       clock,
		})

		require.NoError(t, svc.RunOnce(context.Background()))

		assert.Equal(t, now.Add(-14*24*time.Hour), repo.purgeCutoff)
		assert.Equal(t, now.Add(-24*time.Hour), repo.orphanCutoff)
		assert.Equal(t, now.Add(-time.Hour), repo.stalledTo)
		assert.Equal(t, now.Add(-time.Hour-5*time.Minute), repo.stalledFrom)
		assert.Equal(t, 100, repo.stalledLimit)
		assert.Equal(t, []int64{7, 9}, announcer.ids)

		last, ok := rec.Last("reaper.cleanup")
		require.True(t, ok)
		assert.Equal(t, "success", last.Tags["result"])
		assert.InDelta(t, 7, rec.Sum("reaper.rows_processed"), 0)
		_, ok = rec.Last("reaper.last_success_epoch")
		assert.True(t, ok)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{purgeErr: errors.New("purge failed"), orphanCount: 1}
		rec := &statsd.Recorder{}

		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:    repo,
			Config:  testReaperConfig(),
			Metrics: rec,
			Now:     clock,
		})

		err := svc.RunOnce(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "purge dead letters")
		assert.Equal(t, 1, repo.orphanCalls)

		last, ok := rec.Last("reaper.cleanup")
		require.True(t, ok)
		assert.Equal(t, "error", last.Tags["result"])
		_, ok = rec.Last("reaper.last_success_epoch")
		assert.False(t, ok)
	})

	t.Run("skips stalled jobs without an announcer", func(t *testing.T) {
		repo := &mockReaperRepo{stalledIDs: []int64{1}}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Now: clock})

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Zero(t, repo.stalledLimit)
	})

	t.Run("announces remaining jobs when one fails", func(t *testing.T) {
		repo := &mockReaperRepo{stalledIDs: []int64{1, 2, 3}}
		announcer := &recordingAnnouncer{fail: map[int64]error{2: errors.New("queue down")}}
		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Announcer: announcer,
			Config:    testReaperConfig(),
			Now:       clock,
		})

		err := svc.RunOnce(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "job 2")
		assert.Equal(t, []int64{1, 3}, announcer.ids)
	})

	t.Run("reports cancellation when every step was canceled", func(t *testing.T) {
		repo := &mockReaperRepo{purgeErr: context.Canceled, orphanErr: context.Canceled}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Now: clock})

		err := svc.RunOnce(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.GreaterOrEqual(t, repo.calls(), 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{purgeErr: errors.New("test error")}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.calls(), 2)
	})
}
