package harvester

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/observability/notify"
	"github.com/target/dataio-go/internal/service/failurenotifier"
	"go.uber.org/mock/gomock"
)

func newScheduler(t *testing.T, f *fixture, notifier *failurenotifier.Service) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerOptions{
		Store:      f.store,
		Harvesters: []*Harvester{f.harvester},
		Notifier:   notifier,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return s
}

func harvestedAt(cfg *model.HarvesterConfig, at time.Time) *model.HarvesterConfig {
	cfg.LastHarvested = &at
	return cfg
}

func TestScheduler_Eligibility(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *model.HarvesterConfig
		hasNew bool
		want   int
	}{
		{name: "never harvested", cfg: harvesterConfig(1), hasNew: true, want: 1},
		{name: "no new data", cfg: harvesterConfig(1), hasNew: false, want: 0},
		{name: "disabled", cfg: func() *model.HarvesterConfig { c := harvesterConfig(1); c.Enabled = false; return c }(), hasNew: true, want: 0},
		{name: "within minimum spacing", cfg: harvestedAt(harvesterConfig(1), testNow.Add(-23*time.Hour)), hasNew: true, want: 0},
		{name: "spacing elapsed and schedule fired", cfg: harvestedAt(harvesterConfig(1), testNow.Add(-25*time.Hour)), hasNew: true, want: 1},
		{
			name: "schedule has not fired",
			cfg: func() *model.HarvesterConfig {
				c := harvestedAt(harvesterConfig(1), testNow.Add(-48*time.Hour))
				c.Schedule = "0 0 1 1 *"
				return c
			}(),
			hasNew: true,
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubSource{hasNew: tt.hasNew})
			s := newScheduler(t, f, nil)
			f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(tt.cfg, nil)

			started, err := s.Tick(context.Background(), testNow)
			require.NoError(t, err)
			s.Wait()
			assert.Equal(t, tt.want, started)
		})
	}
}

func TestScheduler_InFlightGuard(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, &stubSource{hasNew: true, block: block})
	s := newScheduler(t, f, nil)

	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(1), nil).Times(1)

	started, err := s.Tick(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, started)

	// The first run is still pulling, so later ticks skip the harvester without asking the store.
	started, err = s.Tick(context.Background(), testNow.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, started)

	close(block)
	s.Wait()
}

func TestScheduler_SpacingAppliesAfterRun(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: true})
	s := newScheduler(t, f, nil)
	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(1), nil).Times(2)

	started, err := s.Tick(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, started)
	s.Wait()

	started, err = s.Tick(context.Background(), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, started, "the in-memory last run counts even before the store reflects it")
}

func TestScheduler_RecoversWALBeforeFirstTick(t *testing.T) {
	f := newFixture(t, &stubSource{hasNew: false})
	s := newScheduler(t, f, nil)

	require.NoError(t, f.wal.Write(&Entry{
		HarvesterID: 1,
		StagingFile: writeStaged(t, f, "a\nb\n"),
		Request:     model.CreateJobRequest{FlowID: 3, SinkID: 4, HarvesterID: &f.harvester.id},
		Records:     2,
	}))

	recoverGet := f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(1), nil)
	expectJobCreated(f, "a\nb\n", 50)
	update := f.store.EXPECT().UpdateHarvesterConfig(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
			return cfg, nil
		}).After(recoverGet)
	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(harvesterConfig(1), nil).After(update)

	started, err := s.Tick(context.Background(), testNow)
	require.NoError(t, err)
	assert.Zero(t, started)

	entry, err := f.wal.Read()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestScheduler_FailedRecoveryIsReportedAndRetried(t *testing.T) {
	var mu sync.Mutex
	var alerts []notify.FailurePayload
	notifier := failurenotifier.NewService(failurenotifier.Options{
		Logger: quietLogger(),
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.FailurePayload) error {
				mu.Lock()
				defer mu.Unlock()
				alerts = append(alerts, p)
				return nil
			}),
		}},
	})

	f := newFixture(t, &stubSource{})
	s := newScheduler(t, f, notifier)
	require.NoError(t, f.wal.Write(&Entry{HarvesterID: 1, StagingFile: writeStaged(t, f, "a\n"), Records: 1}))

	f.store.EXPECT().GetHarvesterConfig(gomock.Any(), int64(1)).Return(nil, errors.New("store down")).Times(2)

	for range 2 {
		started, err := s.Tick(context.Background(), testNow)
		require.ErrorContains(t, err, "store down")
		assert.Zero(t, started)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerts, 2)
	assert.Equal(t, StageHarvester, alerts[0].Stage)
	assert.Equal(t, "daily", alerts[0].Harvester)
}

func TestScheduler_RejectsDuplicateHarvesters(t *testing.T) {
	f := newFixture(t, &stubSource{})
	_, err := NewScheduler(SchedulerOptions{Store: f.store, Harvesters: []*Harvester{f.harvester, f.harvester}})
	require.ErrorContains(t, err, "defined twice")
}

func writeStaged(t *testing.T, f *fixture, data string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.stagingDir, 0o750))
	path := filepath.Join(f.stagingDir, "harvester-1-recover.data")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}
