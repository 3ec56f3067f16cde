package harvester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	obserrors "github.com/target/dataio-go/internal/observability/errors"
	"github.com/target/dataio-go/internal/observability/notify"
	"github.com/target/dataio-go/internal/service/failurenotifier"
)

// DefaultMinSpacing is the minimum time between two runs of one harvester.
const DefaultMinSpacing = 24 * time.Hour

// SchedulerOptions groups dependencies for the Scheduler.
type SchedulerOptions struct {
	Store      core.StateStore // Required
	Harvesters []*Harvester
	MinSpacing time.Duration // defaults to DefaultMinSpacing; negative disables spacing
	Notifier   *failurenotifier.Service
	Logger     *slog.Logger
}

// Scheduler decides on every tick which harvesters run. Runs execute in the background;
// a harvester never has two runs in flight.
type Scheduler struct {
	store      core.StateStore
	harvesters []*Harvester
	minSpacing time.Duration
	notifier   *failurenotifier.Service
	logger     *slog.Logger
	parser     cron.Parser

	mu        sync.Mutex
	inFlight  map[int64]bool
	recovered map[int64]bool
	lastRun   map[int64]time.Time
	schedules map[string]cron.Schedule
	wg        sync.WaitGroup
}

// NewScheduler constructs a Scheduler.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	seen := make(map[int64]struct{}, len(opts.Harvesters))
	for _, h := range opts.Harvesters {
		if h == nil {
			return nil, errors.New("nil harvester")
		}
		if _, dup := seen[h.id]; dup {
			return nil, fmt.Errorf("harvester %d defined twice", h.id)
		}
		seen[h.id] = struct{}{}
	}
	spacing := opts.MinSpacing
	if spacing == 0 {
		spacing = DefaultMinSpacing
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      opts.Store,
		harvesters: opts.Harvesters,
		minSpacing: spacing,
		notifier:   opts.Notifier,
		logger:     logger.With("component", "harvest_scheduler"),
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		inFlight:   make(map[int64]bool),
		recovered:  make(map[int64]bool),
		lastRun:    make(map[int64]time.Time),
		schedules:  make(map[string]cron.Schedule),
	}, nil
}

// Tick starts a run for every eligible harvester and returns how many were started.
// Errors for individual harvesters are joined; they never stop the other harvesters.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	started := 0
	var errs []error
	for _, h := range s.harvesters {
		if ctx.Err() != nil {
			break
		}
		cfg, ok, err := s.eligible(ctx, h, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		if !ok {
			continue
		}
		s.start(ctx, h, cfg, now)
		started++
	}
	return started, errors.Join(errs...)
}

// Wait blocks until all started runs have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) eligible(ctx context.Context, h *Harvester, now time.Time) (*model.HarvesterConfig, bool, error) {
	s.mu.Lock()
	busy := s.inFlight[h.id]
	recovered := s.recovered[h.id]
	s.mu.Unlock()
	if busy {
		return nil, false, nil
	}

	if !recovered {
		if err := s.recover(ctx, h); err != nil {
			return nil, false, err
		}
	}

	cfg, err := s.store.GetHarvesterConfig(ctx, h.id)
	if err != nil {
		return nil, false, fmt.Errorf("get harvester config: %w", err)
	}
	if !cfg.Enabled {
		return nil, false, nil
	}

	last := s.lastRunOf(h.id, cfg)
	if !last.IsZero() {
		if s.minSpacing > 0 && now.Sub(last) < s.minSpacing {
			return nil, false, nil
		}
		schedule, err := s.schedule(cfg.Schedule)
		if err != nil {
			return nil, false, err
		}
		if schedule.Next(last).After(now) {
			return nil, false, nil
		}
	}

	hasNew, err := h.HasNewData(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("check source: %w", err)
	}
	if !hasNew {
		h.logger.DebugContext(ctx, "no new data since last harvest")
		return nil, false, nil
	}
	return cfg, true, nil
}

// recover completes a pending WAL entry before the harvester takes its first tick.
func (s *Scheduler) recover(ctx context.Context, h *Harvester) error {
	result, err := h.Recover(ctx)
	if err != nil {
		s.notify(ctx, h, err)
		return fmt.Errorf("recover wal: %w", err)
	}
	s.mu.Lock()
	s.recovered[h.id] = true
	if result != nil {
		s.lastRun[h.id] = h.now()
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) lastRunOf(id int64, cfg *model.HarvesterConfig) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastRun[id]
	if cfg.LastHarvested != nil && cfg.LastHarvested.After(last) {
		last = *cfg.LastHarvested
	}
	return last
}

func (s *Scheduler) schedule(spec string) (cron.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.schedules[spec]; ok {
		return sched, nil
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.schedules[spec] = sched
	return sched, nil
}

func (s *Scheduler) start(ctx context.Context, h *Harvester, cfg *model.HarvesterConfig, now time.Time) {
	s.mu.Lock()
	s.inFlight[h.id] = true
	s.lastRun[h.id] = now
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, h.id)
			s.mu.Unlock()
		}()

		result, err := h.Run(ctx, cfg)
		if err != nil {
			h.logger.ErrorContext(ctx, "harvest failed", "error", err)
			s.notify(ctx, h, err)
			return
		}
		if result.Job != nil {
			h.logger.InfoContext(ctx, "harvest finished", "job_id", result.Job.ID, "records", result.Pulled.Records)
		}
	}()
}

func (s *Scheduler) notify(ctx context.Context, h *Harvester, err error) {
	if !s.notifier.Enabled() {
		return
	}
	s.notifier.NotifyFailure(ctx, notify.FailurePayload{
		Stage:      StageHarvester,
		Harvester:  h.name,
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		Metadata:   map[string]string{"harvester_id": fmt.Sprint(h.id)},
	})
}
