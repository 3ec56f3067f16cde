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

// SinkRepo stores sink configurations. Every update bumps the version, which delivery
// workers compare against their cached adapter.
type SinkRepo struct {
	repoBase
}

// NewSinkRepo creates a SinkRepo.
func NewSinkRepo(db *sql.DB, cfg RepoConfig) *SinkRepo {
	return &SinkRepo{repoBase: newRepoBase(db, cfg, "sink_repo")}
}

const sinkColumns = `id, name, type, settings, version, created_at, updated_at`

func scanSink(scanner rowScanner) (*model.SinkConfig, error) {
	s := &model.SinkConfig{}
	var settings []byte
	if err := scanner.Scan(&s.ID, &s.Name, &s.Type, &settings, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &s.Settings); err != nil {
		return nil, fmt.Errorf("decode sink settings: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

// Create stores a new sink at version 1.
func (r *SinkRepo) Create(ctx context.Context, req *model.SinkRequest) (*model.SinkConfig, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid sink")
	}
	settings, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal sink settings: %w", err)
	}
	now := r.timeProvider.Now()
	s, err := scanSink(r.DB.QueryRowContext(ctx, `
		INSERT INTO sinks (name, type, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+sinkColumns, req.Name, string(req.Type), settings, now))
	if err != nil {
		return nil, mapErr(err, "create sink")
	}
	r.logger.InfoContext(ctx, "sink created", "sink_id", s.ID, "type", s.Type)
	return s, nil
}

// Update replaces a sink's definition and bumps its version.
func (r *SinkRepo) Update(ctx context.Context, id int64, req *model.SinkRequest) (*model.SinkConfig, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid sink")
	}
	settings, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal sink settings: %w", err)
	}
	s, err := scanSink(r.DB.QueryRowContext(ctx, `
		UPDATE sinks
		SET name = $1, type = $2, settings = $3, version = version + 1, updated_at = $4
		WHERE id = $5
		RETURNING `+sinkColumns, req.Name, string(req.Type), settings, r.timeProvider.Now(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("sink %d not found", id)
	}
	if err != nil {
		return nil, mapErr(err, "update sink %d", id)
	}
	r.logger.InfoContext(ctx, "sink updated", "sink_id", s.ID, "version", s.Version)
	return s, nil
}

// Get returns the current configuration of a sink.
func (r *SinkRepo) Get(ctx context.Context, id int64) (*model.SinkConfig, error) {
	s, err := scanSink(r.DB.QueryRowContext(ctx, `SELECT `+sinkColumns+` FROM sinks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("sink %d not found", id)
	}
	if err != nil {
		return nil, mapErr(err, "get sink %d", id)
	}
	return s, nil
}

// List returns all sinks ordered by name.
func (r *SinkRepo) List(ctx context.Context) ([]*model.SinkConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+sinkColumns+` FROM sinks ORDER BY name`)
	if err != nil {
		return nil, mapErr(err, "list sinks")
	}
	defer func() { _ = rows.Close() }()
	var sinks []*model.SinkConfig
	for rows.Next() {
		s, err := scanSink(rows)
		if err != nil {
			return nil, mapErr(err, "scan sink")
		}
		sinks = append(sinks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "list sinks")
	}
	return sinks, nil
}
