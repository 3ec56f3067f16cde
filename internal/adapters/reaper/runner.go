// Package reaper provides adapters for running the reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/config"
	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/observability/statsd"
	"github.com/target/dataio-go/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB        *sql.DB
	Config    config.ReaperConfig
	Logger    *slog.Logger
	Announcer core.JobAnnouncer

	// DeadLetters replaces the Postgres dead-letter table when messages travel over
	// another transport.
	DeadLetters DeadLetterPurger

	// Optional dependency injection for testing/decoupling
	Repo    core.ReaperRepository
	Metrics statsd.Sink
}

// DeadLetterPurger deletes dead-lettered messages parked before cutoff.
type DeadLetterPurger interface {
	PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error)
}

type transportDeadLetters struct {
	core.ReaperRepository
	purger DeadLetterPurger
}

func (t transportDeadLetters) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.purger.PurgeDeadLetters(ctx, cutoff)
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = NewRepository(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	if opts.DeadLetters != nil {
		repo = transportDeadLetters{ReaperRepository: repo, purger: opts.DeadLetters}
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:      repo,
		Announcer: opts.Announcer,
		Config:    opts.Config,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// Repository implements core.ReaperRepository on top of the Postgres repositories.
type Repository struct {
	queue *data.MessageQueueRepo
	files *data.FileRepo
	jobs  *data.JobRepo
}

var _ core.ReaperRepository = (*Repository)(nil)

// NewRepository builds a Repository sharing one connection pool.
func NewRepository(db *sql.DB, cfg data.RepoConfig) *Repository {
	return &Repository{
		queue: data.NewMessageQueueRepo(db, data.MessageQueueConfig{RepoConfig: cfg}),
		files: data.NewFileRepo(db, cfg),
		jobs:  data.NewJobRepo(db, cfg),
	}
}

// PurgeDeadLetters implements core.ReaperRepository.
func (r *Repository) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.queue.PurgeDeadLetters(ctx, cutoff)
}

// DeleteOrphanFiles implements core.ReaperRepository.
func (r *Repository) DeleteOrphanFiles(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.files.DeleteOrphans(ctx, cutoff)
}

// ListStalledJobs implements core.ReaperRepository. Test jobs are never re-announced.
func (r *Repository) ListStalledJobs(ctx context.Context, from, to time.Time, limit int) ([]int64, error) {
	testKind := model.JobKindTest
	jobs, err := r.jobs.List(ctx, model.JobListOptions{
		CreatedFrom: &from,
		CreatedTo:   &to,
		ExcludeKind: &testKind,
		Phase:       state.PhasePartitioning,
		SortBy:      "id",
		SortOrder:   "asc",
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids, nil
}
