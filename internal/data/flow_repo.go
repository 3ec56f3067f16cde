package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/dataio-go/internal/data/pgxutil"
	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// FlowRepo stores flows. Every update writes a new immutable version row.
type FlowRepo struct {
	repoBase
}

// NewFlowRepo creates a FlowRepo.
func NewFlowRepo(db *sql.DB, cfg RepoConfig) *FlowRepo {
	return &FlowRepo{repoBase: newRepoBase(db, cfg, "flow_repo")}
}

const flowSelect = `
	SELECT f.id, f.name, v.version, v.modules, v.invocation_method, v.created_at, f.updated_at
	FROM flows f
	JOIN flow_versions v ON v.flow_id = f.id`

func scanFlow(scanner rowScanner) (*model.Flow, error) {
	f := &model.Flow{}
	var modules []byte
	if err := scanner.Scan(&f.ID, &f.Name, &f.Version, &modules, &f.InvocationMethod, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(modules, &f.Modules); err != nil {
		return nil, fmt.Errorf("decode flow modules: %w", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return f, nil
}

func insertFlowVersion(ctx context.Context, tx pgx.Tx, flowID, version int64, req *model.FlowRequest) error {
	modules, err := json.Marshal(req.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO flow_versions (flow_id, version, modules, invocation_method)
		VALUES ($1, $2, $3, $4)`, flowID, version, modules, req.InvocationMethod)
	return err
}

// Create stores a new flow at version 1.
func (r *FlowRepo) Create(ctx context.Context, req *model.FlowRequest) (*model.Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid flow")
	}
	var id int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		now := r.timeProvider.Now()
		if err := tx.QueryRow(ctx, `
			INSERT INTO flows (name, version, created_at, updated_at)
			VALUES ($1, 1, $2, $2)
			RETURNING id`, req.Name, now).Scan(&id); err != nil {
			return err
		}
		return insertFlowVersion(ctx, tx, id, 1, req)
	}})
	if err != nil {
		return nil, mapErr(err, "create flow")
	}
	r.logger.InfoContext(ctx, "flow created", "flow_id", id, "name", req.Name)
	return r.Get(ctx, id, 0)
}

// Update stores req as the next version of flow id. Jobs created earlier keep their pinned version.
func (r *FlowRepo) Update(ctx context.Context, id int64, req *model.FlowRequest) (*model.Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid flow")
	}
	var version int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE flows SET name = $1, version = version + 1, updated_at = $2
			WHERE id = $3
			RETURNING version`, req.Name, r.timeProvider.Now(), id).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFoundf("flow %d not found", id)
		}
		if err != nil {
			return err
		}
		return insertFlowVersion(ctx, tx, id, version, req)
	}})
	if err != nil {
		return nil, mapErr(err, "update flow %d", id)
	}
	r.logger.InfoContext(ctx, "flow updated", "flow_id", id, "version", version)
	return r.Get(ctx, id, version)
}

// Get returns a flow at the given version, or its latest version when version is 0.
func (r *FlowRepo) Get(ctx context.Context, id, version int64) (*model.Flow, error) {
	query := flowSelect + ` WHERE f.id = $1 AND v.version = f.version`
	args := []any{id}
	if version > 0 {
		query = flowSelect + ` WHERE f.id = $1 AND v.version = $2`
		args = append(args, version)
	}
	f, err := scanFlow(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("flow %d version %d not found", id, version)
	}
	if err != nil {
		return nil, mapErr(err, "get flow %d", id)
	}
	return f, nil
}

// GetFlow is Get under the name the transform engine loads flows by.
func (r *FlowRepo) GetFlow(ctx context.Context, id, version int64) (*model.Flow, error) {
	return r.Get(ctx, id, version)
}

// List returns the latest version of every flow ordered by name.
func (r *FlowRepo) List(ctx context.Context) ([]*model.Flow, error) {
	rows, err := r.DB.QueryContext(ctx, flowSelect+` WHERE v.version = f.version ORDER BY f.name`)
	if err != nil {
		return nil, mapErr(err, "list flows")
	}
	defer func() { _ = rows.Close() }()
	var flows []*model.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, mapErr(err, "scan flow")
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list flows")
	}
	return flows, nil
}
