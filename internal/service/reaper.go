package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/core"
	obserrors "github.com/target/dataio-go/internal/observability/errors"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo      core.ReaperRepository // Required: cleanup queries
	Announcer core.JobAnnouncer     // Optional: re-announces stalled jobs when set
	Config    config.ReaperConfig   // Required: reaper configuration
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink (StatsD-compatible)
	Now       func() time.Time      // Optional: clock, defaults to time.Now
}

// ReaperService keeps the pipeline's storage tidy.
//
// Each pass:
// - purges dead-lettered messages older than the retention window.
// - deletes uploaded files no job ever referenced.
// - re-announces jobs whose partitioning never started or never finished.
type ReaperService struct {
	repo      core.ReaperRepository
	announcer core.JobAnnouncer
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"dead_letter_max_age", opts.Config.DeadLetterMaxAge,
			"orphan_file_max_age", opts.Config.OrphanFileMaxAge,
			"stalled_job_age", opts.Config.StalledJobAge,
		)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		repo:      opts.Repo,
		announcer: opts.Announcer,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		//nolint:forbidigo // Must* constructor intentionally panics on invalid wiring
		panic(fmt.Errorf("failed to create ReaperService: %w", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// RunOnce performs one pass of every cleanup step. A failing step does not stop the others.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := s.now()
	var (
		errs               []error
		allContextCanceled = true
		results            = make([]stepResult, 0, 3)
	)

	steps := []cleanupStep{
		{fn: s.purgeDeadLetters, label: "purge dead letters", operation: "purge_dead_letters"},
		{fn: s.deleteOrphanFiles, label: "delete orphan files", operation: "delete_orphan_files"},
		{fn: s.reannounceStalledJobs, label: "re-announce stalled jobs", operation: "reannounce_stalled"},
	}

	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step)
		results = append(results, stepResult{operation: step.operation, count: outcome.count, err: outcome.metricErr})
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	s.emitCleanupMetrics(results, s.now().Sub(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	operation string
}

type cleanupStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

type stepResult struct {
	operation string
	count     int64
	err       error
}

func (s *ReaperService) executeCleanupStep(ctx context.Context, step cleanupStep) cleanupStepOutcome {
	count, err := step.fn(ctx)
	outcome := cleanupStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", step.label, err)
	}
	return outcome
}

func (s *ReaperService) purgeDeadLetters(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.DeadLetterMaxAge)
	count, err := s.repo.PurgeDeadLetters(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged dead letters",
			"count", count,
			"max_age", s.config.DeadLetterMaxAge,
		)
	}
	return count, nil
}

func (s *ReaperService) deleteOrphanFiles(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.OrphanFileMaxAge)
	count, err := s.repo.DeleteOrphanFiles(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted orphan files",
			"count", count,
			"max_age", s.config.OrphanFileMaxAge,
		)
	}
	return count, nil
}

// reannounceStalledJobs looks at jobs that crossed the stalled age since the previous pass,
// so each job is re-announced about once. Partitioning is idempotent per chunk, which makes
// a duplicate announcement harmless.
func (s *ReaperService) reannounceStalledJobs(ctx context.Context) (int64, error) {
	if s.announcer == nil {
		return 0, nil
	}
	to := s.now().Add(-s.config.StalledJobAge)
	from := to.Add(-s.config.Interval)

	ids, err := s.repo.ListStalledJobs(ctx, from, to, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	var (
		announced int64
		errs      []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return announced, ctx.Err()
		}
		if err := s.announcer.AnnounceJob(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", id, err))
			continue
		}
		announced++
		if s.logger != nil {
			s.logger.WarnContext(ctx, "re-announced stalled job", "job_id", id, "stalled_after", s.config.StalledJobAge)
		}
	}
	return announced, errors.Join(errs...)
}

func (s *ReaperService) emitCleanupMetrics(results []stepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		total += r.count
		if firstErr == nil {
			firstErr = r.err
		}
	}

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if total == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		s.emitCleanupOperationMetric(r.operation, r.count, r.err)
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
