package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/dataio-go/internal/data/pgxutil"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// ChunkRepo stores chunks, their items and the per-phase chunk results.
type ChunkRepo struct {
	repoBase
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(db *sql.DB, cfg RepoConfig) *ChunkRepo {
	return &ChunkRepo{repoBase: newRepoBase(db, cfg, "chunk_repo")}
}

var chunkColumns = strings.Join([]string{
	"job_id",
	"chunk_id",
	"number_of_items",
	"state",
	"sequence_keys",
	"version",
	"created_at",
	"updated_at",
}, ", ")

const itemColumns = `job_id, chunk_id, item_id, state, partitioning_outcome, processing_outcome, delivering_outcome`

// outcomeColumns maps a result phase to the item column holding its outcome.
var outcomeColumns = map[state.Phase]string{
	state.PhaseProcessing: "processing_outcome",
	state.PhaseDelivering: "delivering_outcome",
}

func scanChunk(scanner rowScanner) (*model.Chunk, error) {
	c := &model.Chunk{}
	var rawState []byte
	if err := scanner.Scan(
		&c.JobID,
		&c.ChunkID,
		&c.NumberOfItems,
		&rawState,
		&c.SequenceKeys,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s, err := decodeState(rawState)
	if err != nil {
		return nil, err
	}
	c.State = s
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func decodeOutcome(raw []byte) (*model.Outcome, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var o model.Outcome
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &o, nil
}

func scanItem(scanner rowScanner) (model.Item, error) {
	var (
		it                         model.Item
		rawState                   []byte
		partitioned, processed, dl []byte
	)
	if err := scanner.Scan(&it.JobID, &it.ChunkID, &it.ItemID, &rawState, &partitioned, &processed, &dl); err != nil {
		return it, err
	}
	var err error
	if it.State, err = decodeState(rawState); err != nil {
		return it, err
	}
	if it.PartitioningOutcome, err = decodeOutcome(partitioned); err != nil {
		return it, err
	}
	if it.ProcessingOutcome, err = decodeOutcome(processed); err != nil {
		return it, err
	}
	it.DeliveringOutcome, err = decodeOutcome(dl)
	return it, err
}

func getChunk(ctx context.Context, q queryer, jobID int64, chunkID int) (*model.Chunk, error) {
	rows, err := q.Query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE job_id = $1 AND chunk_id = $2`, jobID, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, apperrors.NotFoundf("chunk %d/%d not found", jobID, chunkID)
	}
	c, err := scanChunk(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	return c, rows.Err()
}

func updateChunkState(ctx context.Context, tx pgx.Tx, c *model.Chunk, now time.Time) error {
	stateJSON, err := json.Marshal(c.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE chunks
		SET state = $1, version = version + 1, updated_at = $2
		WHERE job_id = $3 AND chunk_id = $4 AND version = $5`,
		stateJSON, now, c.JobID, c.ChunkID, c.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

func statusChange(phase state.Phase, status model.ItemStatus, end *time.Time) state.Change {
	c := state.Change{Phase: phase, EndDate: end}
	switch status {
	case model.ItemSuccess:
		c.Succeeded = 1
	case model.ItemIgnore:
		c.Ignored = 1
	default:
		c.Failed = 1
	}
	return c
}

// partitioningChange tallies partitioning outcomes. Items without one count as failed.
func partitioningChange(items []model.Item) state.Change {
	c := state.Change{Phase: state.PhasePartitioning}
	for _, it := range items {
		status := model.ItemFailure
		if it.PartitioningOutcome != nil {
			status = it.PartitioningOutcome.Status
		}
		d := statusChange(state.PhasePartitioning, status, nil)
		c.Succeeded += d.Succeeded
		c.Failed += d.Failed
		c.Ignored += d.Ignored
	}
	return c
}

// InsertPartitionedChunk stores a chunk with its items and adds its partitioning counts to
// the job. The chunk's own partitioning phase ends immediately. Inserting a chunk that already
// exists returns the stored chunk and leaves the job untouched, so redelivered partitioning
// work is harmless.
func (r *ChunkRepo) InsertPartitionedChunk(ctx context.Context, pc model.PartitionedChunk) (*model.Chunk, error) {
	if pc.Chunk.JobID <= 0 || pc.Chunk.ChunkID < 0 {
		return nil, apperrors.Validationf("invalid chunk key %d/%d", pc.Chunk.JobID, pc.Chunk.ChunkID)
	}
	if pc.Chunk.NumberOfItems != len(pc.Items) {
		return nil, apperrors.Validationf("chunk declares %d items but carries %d", pc.Chunk.NumberOfItems, len(pc.Items))
	}
	keys := pc.Chunk.SequenceKeys
	if keys == nil {
		keys = []string{}
	}

	var chunk *model.Chunk
	err := r.withVersionRetry(ctx, "insert partitioned chunk", func(int) error {
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			change := partitioningChange(pc.Items)

			ended := change
			ended.EndDate = &now
			chunkState, err := state.Apply(state.State{}, ended, now)
			if err != nil {
				return mapStateError(err)
			}
			stateJSON, err := json.Marshal(chunkState)
			if err != nil {
				return fmt.Errorf("marshal chunk state: %w", err)
			}

			rows, err := tx.Query(ctx, `
				INSERT INTO chunks (job_id, chunk_id, number_of_items, state, sequence_keys, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $6)
				ON CONFLICT (job_id, chunk_id) DO NOTHING
				RETURNING `+chunkColumns,
				pc.Chunk.JobID, pc.Chunk.ChunkID, len(pc.Items), stateJSON, keys, now)
			if err != nil {
				return err
			}
			inserted := rows.Next()
			if inserted {
				chunk, err = scanChunk(rows)
			}
			rows.Close()
			if err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}
			if !inserted {
				existing, err := getChunk(ctx, tx, pc.Chunk.JobID, pc.Chunk.ChunkID)
				chunk = existing
				return err
			}

			if err := insertItems(ctx, tx, pc.Items, pc.Chunk, now); err != nil {
				return err
			}
			_, err = mutateJob(ctx, tx, pc.Chunk.JobID, now, func(job *model.Job) error {
				if job.State.Partitioning.Ended() {
					return apperrors.Conflictf("job %d is already partitioned", job.ID)
				}
				job.NumberOfChunks++
				job.NumberOfItems += len(pc.Items)
				return applyToJob(change, now)(job)
			})
			return err
		}})
	})
	if err != nil {
		return nil, mapErr(err, "insert chunk %d/%d", pc.Chunk.JobID, pc.Chunk.ChunkID)
	}
	return chunk, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, items []model.Item, chunk model.Chunk, now time.Time) error {
	batch := &pgx.Batch{}
	for i, it := range items {
		outcome := it.PartitioningOutcome
		if outcome == nil {
			outcome = &model.Outcome{ItemID: i, Status: model.ItemFailure, Diagnostic: "missing partitioning outcome"}
		}
		itemState, err := state.Apply(state.State{}, statusChange(state.PhasePartitioning, outcome.Status, &now), now)
		if err != nil {
			return mapStateError(err)
		}
		stateJSON, err := json.Marshal(itemState)
		if err != nil {
			return fmt.Errorf("marshal item state: %w", err)
		}
		outcomeJSON, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("marshal item outcome: %w", err)
		}
		batch.Queue(`
			INSERT INTO items (job_id, chunk_id, item_id, state, partitioning_outcome)
			VALUES ($1, $2, $3, $4, $5)`,
			chunk.JobID, chunk.ChunkID, i, stateJSON, outcomeJSON)
	}
	return execBatch(ctx, tx, batch)
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// GetChunk returns one chunk.
func (r *ChunkRepo) GetChunk(ctx context.Context, jobID int64, chunkID int) (*model.Chunk, error) {
	var chunk *model.Chunk
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		c, err := getChunk(ctx, conn, jobID, chunkID)
		chunk = c
		return err
	})
	if err != nil {
		return nil, mapErr(err, "get chunk %d/%d", jobID, chunkID)
	}
	return chunk, nil
}

// ListChunks returns the chunks of a job ordered by chunk id.
func (r *ChunkRepo) ListChunks(ctx context.Context, jobID int64, limit, offset int) ([]*model.Chunk, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	var chunks []*model.Chunk
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+chunkColumns+`
			FROM chunks
			WHERE job_id = $1
			ORDER BY chunk_id
			LIMIT $2 OFFSET $3`, jobID, min(limit, maxJobListLimit), max(offset, 0))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				return err
			}
			chunks = append(chunks, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapErr(err, "list chunks of job %d", jobID)
	}
	return chunks, nil
}

// GetChunkItems returns the items of a chunk ordered by item id.
func (r *ChunkRepo) GetChunkItems(ctx context.Context, jobID int64, chunkID int) ([]model.Item, error) {
	var items []model.Item
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		if _, err := getChunk(ctx, conn, jobID, chunkID); err != nil {
			return err
		}
		rows, err := conn.Query(ctx, `
			SELECT `+itemColumns+`
			FROM items
			WHERE job_id = $1 AND chunk_id = $2
			ORDER BY item_id`, jobID, chunkID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			items = append(items, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapErr(err, "get items of chunk %d/%d", jobID, chunkID)
	}
	return items, nil
}

// ApplyStateChange applies c to a chunk's state. The job is not touched.
func (r *ChunkRepo) ApplyStateChange(ctx context.Context, jobID int64, chunkID int, c state.Change) (*model.Chunk, error) {
	if err := c.Validate(); err != nil {
		return nil, mapStateError(err)
	}
	var chunk *model.Chunk
	err := r.withVersionRetry(ctx, "apply chunk state change", func(int) error {
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			ch, err := getChunk(ctx, tx, jobID, chunkID)
			if err != nil {
				return err
			}
			next, err := state.Apply(ch.State, c, now)
			if err != nil {
				return mapStateError(err)
			}
			ch.State = next
			if err := updateChunkState(ctx, tx, ch, now); err != nil {
				return err
			}
			chunk = ch
			return nil
		}})
	})
	if err != nil {
		return nil, mapErr(err, "apply state change to chunk %d/%d", jobID, chunkID)
	}
	return chunk, nil
}

// RecordProcessedChunk stores processing outcomes and applies their counts to items, chunk and job.
// It reports false when an identical result was already recorded.
func (r *ChunkRepo) RecordProcessedChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	return r.recordChunkResult(ctx, result, state.PhaseProcessing)
}

// RecordDeliveredChunk is RecordProcessedChunk for the delivering phase. A different result for
// an already delivered chunk is a Conflict.
func (r *ChunkRepo) RecordDeliveredChunk(ctx context.Context, result *model.ChunkResult) (bool, error) {
	return r.recordChunkResult(ctx, result, state.PhaseDelivering)
}

func (r *ChunkRepo) recordChunkResult(ctx context.Context, result *model.ChunkResult, phase state.Phase) (bool, error) {
	if err := result.Validate(); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid chunk result")
	}
	if result.Phase != phase {
		return false, apperrors.Validationf("expected a %s result, got %s", phase, result.Phase)
	}

	checksum := result.Checksum()
	change := result.StateChange()
	recorded := false
	err := r.withVersionRetry(ctx, "record chunk result", func(int) error {
		recorded = false
		return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now()
			chunk, err := getChunk(ctx, tx, result.JobID, result.ChunkID)
			if err != nil {
				return err
			}
			if len(result.Items) != chunk.NumberOfItems {
				return apperrors.Validationf("chunk %d/%d has %d items, result carries %d",
					result.JobID, result.ChunkID, chunk.NumberOfItems, len(result.Items))
			}

			fresh, err := claimChunkResult(ctx, tx, result, checksum, now)
			if err != nil || !fresh {
				return err
			}

			if err := applyItemOutcomes(ctx, tx, result, now); err != nil {
				return err
			}
			next, err := state.Apply(chunk.State, change, now)
			if err != nil {
				return mapStateError(err)
			}
			chunk.State = next
			if err := updateChunkState(ctx, tx, chunk, now); err != nil {
				return err
			}
			if _, err := mutateJob(ctx, tx, result.JobID, now, applyToJob(change, now)); err != nil {
				return err
			}
			recorded = true
			return nil
		}})
	})
	if err != nil {
		return false, mapErr(err, "record %s result for chunk %d/%d", phase, result.JobID, result.ChunkID)
	}
	if !recorded {
		r.logger.InfoContext(ctx, "duplicate chunk result ignored",
			"job_id", result.JobID,
			"chunk_id", result.ChunkID,
			"phase", phase,
		)
	}
	return recorded, nil
}

// claimChunkResult inserts the result checksum. It returns false when the same result was
// recorded before and a Conflict when a different one was.
func claimChunkResult(ctx context.Context, tx pgx.Tx, result *model.ChunkResult, checksum string, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO chunk_results (job_id, chunk_id, phase, checksum, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, chunk_id, phase) DO NOTHING`,
		result.JobID, result.ChunkID, string(result.Phase), checksum, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var existing string
	if err := tx.QueryRow(ctx, `
		SELECT checksum FROM chunk_results
		WHERE job_id = $1 AND chunk_id = $2 AND phase = $3`,
		result.JobID, result.ChunkID, string(result.Phase)).Scan(&existing); err != nil {
		return false, err
	}
	if existing != checksum {
		return false, apperrors.Conflictf("chunk %d/%d already has a different %s result",
			result.JobID, result.ChunkID, result.Phase)
	}
	return false, nil
}

func applyItemOutcomes(ctx context.Context, tx pgx.Tx, result *model.ChunkResult, now time.Time) error {
	column, ok := outcomeColumns[result.Phase]
	if !ok {
		return apperrors.Validationf("no outcome column for phase %s", result.Phase)
	}

	rows, err := tx.Query(ctx, `
		SELECT item_id, state FROM items
		WHERE job_id = $1 AND chunk_id = $2`, result.JobID, result.ChunkID)
	if err != nil {
		return err
	}
	states := make(map[int]state.State)
	for rows.Next() {
		var (
			id  int
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return err
		}
		s, err := decodeState(raw)
		if err != nil {
			rows.Close()
			return err
		}
		states[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, o := range result.Items {
		current, ok := states[o.ItemID]
		if !ok {
			return apperrors.Validationf("item %d/%d/%d does not exist", result.JobID, result.ChunkID, o.ItemID)
		}
		next, err := state.Apply(current, statusChange(result.Phase, o.Status, nil), now)
		if err != nil {
			return mapStateError(err)
		}
		stateJSON, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal item state: %w", err)
		}
		outcomeJSON, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal item outcome: %w", err)
		}
		batch.Queue(`UPDATE items SET state = $1, `+column+` = $2
			WHERE job_id = $3 AND chunk_id = $4 AND item_id = $5`,
			stateJSON, outcomeJSON, result.JobID, result.ChunkID, o.ItemID)
	}
	return execBatch(ctx, tx, batch)
}
