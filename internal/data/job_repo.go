package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/dataio-go/internal/data/database"
	"github.com/target/dataio-go/internal/data/pgxutil"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 1000
)

// JobRepo provides database operations for jobs.
type JobRepo struct {
	repoBase
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	return &JobRepo{repoBase: newRepoBase(db, cfg, "job_repo")}
}

var jobColumnList = []string{
	"id",
	"specification",
	"eoj",
	"number_of_chunks",
	"number_of_items",
	"state",
	"flow_id",
	"flow_version",
	"sink_id",
	"sink_version",
	"harvester_id",
	"version",
	"created_at",
	"updated_at",
	"completed_at",
}

var jobColumns = strings.Join(jobColumnList, ", ")

// jobFieldMap whitelists the fields job listings can filter and sort on.
var jobFieldMap = map[string]string{
	"id":              "id",
	"submitter":       "submitter",
	"kind":            "kind",
	"sink_id":         "sink_id",
	"harvester_id":    "harvester_id",
	"number_of_items": "number_of_items",
	"created_at":      "created_at",
	"completed_at":    "completed_at",
}

type jobRowData struct {
	specification, state []byte
	harvesterID          sql.NullInt64
	completedAt          sql.NullTime
}

func (d *jobRowData) scanInto(scanner rowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&d.specification,
		&job.EOJ,
		&job.NumberOfChunks,
		&job.NumberOfItems,
		&d.state,
		&job.FlowID,
		&job.FlowVersion,
		&job.SinkID,
		&job.SinkVersion,
		&d.harvesterID,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) error {
	if err := json.Unmarshal(d.specification, &job.Specification); err != nil {
		return fmt.Errorf("decode specification: %w", err)
	}
	s, err := decodeState(d.state)
	if err != nil {
		return err
	}
	job.State = s
	job.HarvesterID = cloneNullableInt64(d.harvesterID)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

func scanJobFromRow(scanner rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	return job, rows.Err()
}

// Create registers a job, pinning the current flow and sink versions.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	spec := req.Specification
	if spec.Kind == "" {
		spec.Kind = model.JobKindPersistent
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal specification: %w", err)
	}
	stateJSON, err := json.Marshal(state.State{})
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	now := r.timeProvider.Now()
	var job *model.Job
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO jobs (specification, submitter, kind, state, flow_id, flow_version,
			                  sink_id, sink_version, harvester_id, created_at, updated_at)
			SELECT $1::jsonb, $2::bigint, $3::text, $4::jsonb, f.id, f.version, s.id, s.version, $5::bigint, $6::timestamptz, $6::timestamptz
			FROM flows f, sinks s
			WHERE f.id = $7 AND s.id = $8
			RETURNING `+jobColumns,
			specJSON, spec.Submitter, spec.Kind, stateJSON, req.HarvesterID, now, req.FlowID, req.SinkID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := collectJobFromRows(rows)
		if errors.Is(cerr, pgx.ErrNoRows) {
			return apperrors.NotFoundf("flow %d or sink %d not found", req.FlowID, req.SinkID)
		}
		job = j
		return cerr
	})
	if err != nil {
		return nil, mapErr(err, "create job")
	}

	r.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"flow_id", job.FlowID,
		"flow_version", job.FlowVersion,
		"sink_id", job.SinkID,
		"sink_version", job.SinkVersion,
	)
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		j, err := getJob(ctx, conn, id)
		job = j
		return err
	})
	if err != nil {
		return nil, mapErr(err, "get job %d", id)
	}
	return job, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getJob(ctx context.Context, q queryer, id int64) (*model.Job, error) {
	rows, err := q.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	job, err := collectJobFromRows(rows)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %d not found", id)
	}
	return job, err
}

// updateJobState writes job's state, counters and completion using an optimistic version check.
func updateJobState(ctx context.Context, tx pgx.Tx, job *model.Job, now time.Time) error {
	stateJSON, err := json.Marshal(job.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if job.CompletedAt == nil && job.ReadyForCompletion() {
		t := now.UTC()
		job.CompletedAt = &t
	}
	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET state = $1,
		    eoj = $2,
		    number_of_chunks = $3,
		    number_of_items = $4,
		    completed_at = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7 AND version = $8`,
		stateJSON, job.EOJ, job.NumberOfChunks, job.NumberOfItems, job.CompletedAt, now, job.ID, job.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	job.Version++
	job.UpdatedAt = now
	return nil
}

// mutateJob reads the job, lets fn change it, and writes it back within tx.
func mutateJob(ctx context.Context, tx pgx.Tx, jobID int64, now time.Time, fn func(*model.Job) error) (*model.Job, error) {
	job, err := getJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := updateJobState(ctx, tx, job, now); err != nil {
		return nil, err
	}
	return job, nil
}

func applyToJob(c state.Change, now time.Time) func(*model.Job) error {
	return func(job *model.Job) error {
		next, err := state.Apply(job.State, c, now)
		if err != nil {
			return mapStateError(err)
		}
		job.State = next
		return nil
	}
}

// ApplyStateChange applies c to the job's state, retrying on concurrent modification.
func (r *JobRepo) ApplyStateChange(ctx context.Context, jobID int64, c state.Change) (*model.Job, error) {
	if err := c.Validate(); err != nil {
		return nil, mapStateError(err)
	}
	var job *model.Job
	err := r.withVersionRetry(ctx, "apply job state change", func(int) error {
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			j, err := mutateJob(ctx, tx, jobID, now, applyToJob(c, now))
			job = j
			return err
		}})
	})
	if err != nil {
		return nil, mapErr(err, "apply state change to job %d", jobID)
	}
	return job, nil
}

// MarkPartitioned sets the end-of-job flag and ends the partitioning phase.
// Calling it again on a partitioned job is a no-op.
func (r *JobRepo) MarkPartitioned(ctx context.Context, jobID int64) (*model.Job, error) {
	var job *model.Job
	err := r.withVersionRetry(ctx, "mark job partitioned", func(int) error {
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			j, err := getJob(ctx, tx, jobID)
			if err != nil {
				return err
			}
			if j.EOJ && j.State.Partitioning.Ended() {
				job = j
				return nil
			}
			if err := applyToJob(state.Change{Phase: state.PhasePartitioning, EndDate: &now}, now)(j); err != nil {
				return err
			}
			j.EOJ = true
			if err := updateJobState(ctx, tx, j, now); err != nil {
				return err
			}
			job = j
			return nil
		}})
	})
	if err != nil {
		return nil, mapErr(err, "mark job %d partitioned", jobID)
	}
	r.logger.InfoContext(ctx, "job partitioned",
		"job_id", job.ID,
		"chunks", job.NumberOfChunks,
		"items", job.NumberOfItems,
		"completed", job.Completed(),
	)
	return job, nil
}

func normalizeJobListOptions(opts model.JobListOptions) model.JobListOptions {
	if opts.Limit <= 0 {
		opts.Limit = defaultJobListLimit
	}
	opts.Limit = min(opts.Limit, maxJobListLimit)
	opts.Offset = max(opts.Offset, 0)
	if _, ok := jobFieldMap[opts.SortBy]; !ok {
		opts.SortBy = "created_at"
	}
	if !strings.EqualFold(opts.SortOrder, "asc") {
		opts.SortOrder = "desc"
	}
	return opts
}

func jobListConditions(opts model.JobListOptions) []database.Condition {
	var conds []database.Condition
	if opts.Submitter != nil {
		conds = append(conds, database.WhereCond("submitter", database.Equal, *opts.Submitter))
	}
	if opts.SinkID != nil {
		conds = append(conds, database.WhereCond("sink_id", database.Equal, *opts.SinkID))
	}
	if opts.HarvesterID != nil {
		conds = append(conds, database.WhereCond("harvester_id", database.Equal, *opts.HarvesterID))
	}
	if opts.Completed != nil {
		op := database.IsNull
		if *opts.Completed {
			op = database.IsNotNull
		}
		conds = append(conds, database.WhereCond("completed_at", op, nil))
	}
	if opts.CreatedFrom != nil {
		conds = append(conds, database.WhereCond("created_at", database.GreaterThanOrEqual, opts.CreatedFrom.UTC()))
	}
	if opts.CreatedTo != nil {
		conds = append(conds, database.WhereCond("created_at", database.LessThan, opts.CreatedTo.UTC()))
	}
	if opts.MinItems != nil {
		conds = append(conds, database.WhereCond("number_of_items", database.GreaterThanOrEqual, *opts.MinItems))
	}
	if opts.ExcludeKind != nil {
		conds = append(conds, database.WhereCond("kind", database.NotEqual, string(*opts.ExcludeKind)))
	}
	if opts.Phase.Valid() {
		conds = append(conds, database.WhereRawCond(
			"state->($1::text)->>'endDate' IS NULL", strings.ToLower(string(opts.Phase))))
	}
	return conds
}

// List returns jobs matching opts. Ties in the sort column are broken by id in the same direction.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	opts = normalizeJobListOptions(opts)
	orderBy := []string{opts.SortBy}
	if opts.SortBy != "id" {
		orderBy = append(orderBy, "id")
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs",
		database.WithColumns(jobColumnList...),
		database.WithFieldMap(jobFieldMap),
		database.WithConditions(jobListConditions(opts)...),
		database.WithOrderBy(opts.SortOrder, orderBy...),
		database.WithLimit(opts.Limit),
		database.WithOffset(opts.Offset),
	))

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJobFromRow(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapErr(err, "list jobs")
	}
	return jobs, nil
}

// Count returns the number of jobs matching the filters of opts, ignoring pagination.
func (r *JobRepo) Count(ctx context.Context, opts model.JobListOptions) (int64, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs",
		database.WithCountOnly(),
		database.WithFieldMap(jobFieldMap),
		database.WithConditions(jobListConditions(opts)...),
	))
	var n int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapErr(err, "count jobs")
	}
	return n, nil
}
