package harvester

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/target/dataio-go/internal/core"
	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/observability/metrics"
	"github.com/target/dataio-go/internal/observability/statsd"
)

// StageHarvester tags harvester metrics and failure notifications.
const StageHarvester = "harvester"

// Options groups dependencies for a Harvester.
type Options struct {
	ID         int64  // Required: id of the harvester config in the state store
	Name       string // defaults to harvester-{ID}
	Store      core.StateStore
	Source     Source
	WAL        *WAL
	StagingDir string
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// RunResult describes what a run or recovery produced.
type RunResult struct {
	Job       *model.Job              // nil when the source had no records
	Config    *model.HarvesterConfig  // config after the run pushed its dates
	Pulled    Pulled
	Recovered bool // the job came from a pending WAL entry
}

// Harvester turns new source data into one job per run.
type Harvester struct {
	id         int64
	name       string
	store      core.StateStore
	source     Source
	wal        *WAL
	stagingDir string
	now        func() time.Time
	logger     *slog.Logger
	metrics    statsd.Sink
}

// New constructs a Harvester.
func New(opts Options) (*Harvester, error) {
	switch {
	case opts.ID <= 0:
		return nil, errors.New("harvester id is required")
	case opts.Store == nil:
		return nil, errors.New("state store is required")
	case opts.Source == nil:
		return nil, errors.New("source is required")
	case opts.WAL == nil:
		return nil, errors.New("wal is required")
	case opts.StagingDir == "":
		return nil, errors.New("staging directory is required")
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("harvester-%d", opts.ID)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		id:         opts.ID,
		name:       name,
		store:      opts.Store,
		source:     opts.Source,
		wal:        opts.WAL,
		stagingDir: opts.StagingDir,
		now:        now,
		logger:     logger.With("component", "harvester", "harvester", name, "harvester_id", opts.ID),
		metrics:    opts.Metrics,
	}, nil
}

// ID returns the harvester config id.
func (h *Harvester) ID() int64 { return h.id }

// Name returns the harvester name.
func (h *Harvester) Name() string { return h.name }

// HasNewData asks the source whether anything was published since the config's cursor.
func (h *Harvester) HasNewData(ctx context.Context, cfg *model.HarvesterConfig) (bool, error) {
	return h.source.HasNewData(ctx, cfg.NextPublicationDate)
}

// Recover redoes a pending WAL entry: the job is created, the entry committed and the
// harvester config updated. It returns nil when nothing was pending.
func (h *Harvester) Recover(ctx context.Context) (*RunResult, error) {
	entry, err := h.wal.Read()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		h.removeStaleStaging(ctx)
		return nil, nil
	}

	start := h.now()
	h.logger.WarnContext(ctx, "recovering uncommitted harvest",
		"staging_file", entry.StagingFile,
		"written_at", entry.WrittenAt,
	)
	result, err := h.recoverEntry(ctx, entry)
	metrics.EmitStage(h.metrics, metrics.StageMetric{
		Stage:     StageHarvester,
		Operation: "recover",
		Result:    metrics.ResultFor(err),
		Items:     entry.Records,
		Duration:  h.now().Sub(start),
		Err:       err,
	})
	return result, err
}

func (h *Harvester) recoverEntry(ctx context.Context, entry *Entry) (*RunResult, error) {
	cfg, err := h.store.GetHarvesterConfig(ctx, h.id)
	if err != nil {
		return nil, fmt.Errorf("get harvester config: %w", err)
	}
	job, updated, err := h.complete(ctx, entry, cfg)
	if err != nil {
		return nil, err
	}
	return &RunResult{
		Job:       job,
		Config:    updated,
		Pulled:    Pulled{Records: entry.Records},
		Recovered: true,
	}, nil
}

// Run performs one harvest against cfg. A pending WAL entry is recovered first and its
// job returned without pulling again.
func (h *Harvester) Run(ctx context.Context, cfg *model.HarvesterConfig) (*RunResult, error) {
	if cfg == nil {
		return nil, errors.New("harvester config is required")
	}
	recovered, err := h.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	if recovered != nil {
		return recovered, nil
	}

	start := h.now()
	result, err := h.harvest(ctx, cfg)
	items := 0
	if result != nil {
		items = result.Pulled.Records
	}
	metrics.EmitStage(h.metrics, metrics.StageMetric{
		Stage:     StageHarvester,
		Operation: "harvest",
		Result:    metrics.ResultFor(err),
		Items:     items,
		Duration:  h.now().Sub(start),
		Err:       err,
	})
	return result, err
}

func (h *Harvester) harvest(ctx context.Context, cfg *model.HarvesterConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Validationf("harvester %d: %v", h.id, err)
	}

	staging, pulled, err := h.pull(ctx, cfg)
	if err != nil {
		return nil, err
	}
	result := &RunResult{Pulled: pulled, Config: cfg}

	if pulled.Records == 0 {
		removeFile(staging)
		if pulled.Files == 0 {
			h.logger.InfoContext(ctx, "no new data")
			return result, nil
		}
		// Only empty files arrived; advance the cursor past them.
		updated, err := h.pushConfig(ctx, cfg, &pulled.Cursor)
		if err != nil {
			return nil, err
		}
		result.Config = updated
		return result, nil
	}

	id := h.id
	entry := &Entry{
		HarvesterID: h.id,
		StagingFile: staging,
		Request: model.CreateJobRequest{
			Specification: cfg.Specification,
			FlowID:        cfg.FlowID,
			SinkID:        cfg.SinkID,
			HarvesterID:   &id,
		},
		NextPublicationDate: &pulled.Cursor,
		Records:             pulled.Records,
		WrittenAt:           h.now().UTC(),
	}
	if err := h.wal.Write(entry); err != nil {
		removeFile(staging)
		return nil, fmt.Errorf("write wal: %w", err)
	}

	job, updated, err := h.complete(ctx, entry, cfg)
	if err != nil {
		return nil, err
	}
	result.Job = job
	result.Config = updated
	return result, nil
}

func (h *Harvester) pull(ctx context.Context, cfg *model.HarvesterConfig) (string, Pulled, error) {
	if err := os.MkdirAll(h.stagingDir, 0o750); err != nil {
		return "", Pulled{}, fmt.Errorf("create staging directory: %w", err)
	}
	f, err := os.CreateTemp(h.stagingDir, h.stagingPrefix()+"*.data")
	if err != nil {
		return "", Pulled{}, fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()

	w := bufio.NewWriter(f)
	pulled, err := h.source.Pull(ctx, cfg.NextPublicationDate, cfg.Specification.Format, w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeFile(path)
		return "", Pulled{}, fmt.Errorf("pull source data: %w", err)
	}
	h.logger.InfoContext(ctx, "pulled source data", "files", pulled.Files, "records", pulled.Records)
	return path, pulled, nil
}

// complete creates the job for entry, commits the WAL and pushes the harvester dates.
func (h *Harvester) complete(ctx context.Context, entry *Entry, cfg *model.HarvesterConfig) (*model.Job, *model.HarvesterConfig, error) {
	job, err := h.createJob(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	if err := h.wal.Commit(); err != nil {
		return job, nil, err
	}
	removeFile(entry.StagingFile)
	h.logger.InfoContext(ctx, "harvested job", "job_id", job.ID, "records", entry.Records)

	updated, err := h.pushConfig(ctx, cfg, entry.NextPublicationDate)
	if err != nil {
		return job, nil, err
	}
	return job, updated, nil
}

func (h *Harvester) createJob(ctx context.Context, entry *Entry) (*model.Job, error) {
	data, err := os.ReadFile(entry.StagingFile)
	if err != nil {
		return nil, fmt.Errorf("read staged data: %w", err)
	}
	file, err := h.store.UploadFile(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("upload staged data: %w", err)
	}
	req := entry.Request
	req.Specification.DataFile = file.ID
	job, err := h.store.CreateJob(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// pushConfig stores the new publication date. A version conflict is answered with exactly
// one refresh and retry; any other failure, or a second conflict, fails the run.
func (h *Harvester) pushConfig(ctx context.Context, cfg *model.HarvesterConfig, next *time.Time) (*model.HarvesterConfig, error) {
	harvested := h.now().UTC()
	apply := func(c *model.HarvesterConfig) *model.HarvesterConfig {
		u := *c
		if next != nil {
			n := next.UTC()
			u.NextPublicationDate = &n
		}
		u.LastHarvested = &harvested
		return &u
	}

	updated, err := h.store.UpdateHarvesterConfig(ctx, apply(cfg))
	if err == nil {
		return updated, nil
	}
	if !apperrors.IsConflict(err) {
		return nil, fmt.Errorf("update harvester config: %w", err)
	}

	h.logger.InfoContext(ctx, "harvester config changed concurrently; refreshing", "version", cfg.Version)
	fresh, err := h.store.GetHarvesterConfig(ctx, h.id)
	if err != nil {
		return nil, fmt.Errorf("refresh harvester config: %w", err)
	}
	updated, err = h.store.UpdateHarvesterConfig(ctx, apply(fresh))
	if err != nil {
		return nil, fmt.Errorf("update refreshed harvester config: %w", err)
	}
	return updated, nil
}

func (h *Harvester) stagingPrefix() string {
	return fmt.Sprintf("harvester-%d-", h.id)
}

// removeStaleStaging deletes staging files left behind by a run that committed its WAL
// entry but stopped before cleaning up.
func (h *Harvester) removeStaleStaging(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(h.stagingDir, h.stagingPrefix()+"*.data"))
	if err != nil {
		return
	}
	for _, path := range matches {
		h.logger.DebugContext(ctx, "removing stale staging file", "path", path)
		removeFile(path)
	}
}

func removeFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
