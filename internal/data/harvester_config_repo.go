package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// HarvesterConfigRepo stores harvester configurations under optimistic versioning.
type HarvesterConfigRepo struct {
	repoBase
}

// NewHarvesterConfigRepo creates a HarvesterConfigRepo.
func NewHarvesterConfigRepo(db *sql.DB, cfg RepoConfig) *HarvesterConfigRepo {
	return &HarvesterConfigRepo{repoBase: newRepoBase(db, cfg, "harvester_config_repo")}
}

const harvesterColumns = `id, name, enabled, schedule, specification, flow_id, sink_id,
	next_publication_date, last_harvested, version, updated_at`

func scanHarvesterConfig(scanner rowScanner) (*model.HarvesterConfig, error) {
	c := &model.HarvesterConfig{}
	var (
		spec                      []byte
		nextPublication, harvested sql.NullTime
	)
	if err := scanner.Scan(
		&c.ID,
		&c.Name,
		&c.Enabled,
		&c.Schedule,
		&spec,
		&c.FlowID,
		&c.SinkID,
		&nextPublication,
		&harvested,
		&c.Version,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(spec, &c.Specification); err != nil {
		return nil, fmt.Errorf("decode harvester specification: %w", err)
	}
	c.NextPublicationDate = cloneNullableTime(nextPublication)
	c.LastHarvested = cloneNullableTime(harvested)
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// Create stores a new harvester configuration at version 1.
func (r *HarvesterConfigRepo) Create(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid harvester config")
	}
	spec, err := json.Marshal(cfg.Specification)
	if err != nil {
		return nil, fmt.Errorf("marshal specification: %w", err)
	}
	out, err := scanHarvesterConfig(r.DB.QueryRowContext(ctx, `
		INSERT INTO harvester_configs (name, enabled, schedule, specification, flow_id, sink_id,
		                               next_publication_date, last_harvested, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+harvesterColumns,
		cfg.Name, cfg.Enabled, cfg.Schedule, spec, cfg.FlowID, cfg.SinkID,
		cfg.NextPublicationDate, cfg.LastHarvested, r.timeProvider.Now()))
	if err != nil {
		return nil, mapErr(err, "create harvester config")
	}
	return out, nil
}

// Get returns a harvester configuration.
func (r *HarvesterConfigRepo) Get(ctx context.Context, id int64) (*model.HarvesterConfig, error) {
	c, err := scanHarvesterConfig(r.DB.QueryRowContext(ctx,
		`SELECT `+harvesterColumns+` FROM harvester_configs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("harvester config %d not found", id)
	}
	if err != nil {
		return nil, mapErr(err, "get harvester config %d", id)
	}
	return c, nil
}

// List returns harvester configurations ordered by id, optionally only enabled ones.
func (r *HarvesterConfigRepo) List(ctx context.Context, enabledOnly bool) ([]*model.HarvesterConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+harvesterColumns+`
		FROM harvester_configs
		WHERE enabled OR NOT $1
		ORDER BY id`, enabledOnly)
	if err != nil {
		return nil, mapErr(err, "list harvester configs")
	}
	defer func() { _ = rows.Close() }()
	var out []*model.HarvesterConfig
	for rows.Next() {
		c, err := scanHarvesterConfig(rows)
		if err != nil {
			return nil, mapErr(err, "scan harvester config")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list harvester configs")
	}
	return out, nil
}

// Update writes cfg if cfg.Version still matches the stored version and returns the stored
// result with the bumped version. A stale version is a Conflict; the caller must re-read.
func (r *HarvesterConfigRepo) Update(ctx context.Context, cfg *model.HarvesterConfig) (*model.HarvesterConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid harvester config")
	}
	spec, err := json.Marshal(cfg.Specification)
	if err != nil {
		return nil, fmt.Errorf("marshal specification: %w", err)
	}
	out, err := scanHarvesterConfig(r.DB.QueryRowContext(ctx, `
		UPDATE harvester_configs
		SET name = $1, enabled = $2, schedule = $3, specification = $4, flow_id = $5, sink_id = $6,
		    next_publication_date = $7, last_harvested = $8, version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11
		RETURNING `+harvesterColumns,
		cfg.Name, cfg.Enabled, cfg.Schedule, spec, cfg.FlowID, cfg.SinkID,
		cfg.NextPublicationDate, cfg.LastHarvested, r.timeProvider.Now(), cfg.ID, cfg.Version))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, cfg.ID); getErr != nil {
			return nil, getErr
		}
		r.logger.WarnContext(ctx, "stale harvester config update rejected", "harvester_id", cfg.ID, "version", cfg.Version)
		return nil, apperrors.Wrapf(ErrVersionConflict, apperrors.ErrCodeConflict,
			"harvester config %d was modified since version %d", cfg.ID, cfg.Version)
	}
	if err != nil {
		return nil, mapErr(err, "update harvester config %d", cfg.ID)
	}
	return out, nil
}
