package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// FileRepo stores uploaded raw job data.
type FileRepo struct {
	repoBase
}

// NewFileRepo creates a FileRepo.
func NewFileRepo(db *sql.DB, cfg RepoConfig) *FileRepo {
	return &FileRepo{repoBase: newRepoBase(db, cfg, "file_repo")}
}

// Create stores data under a new id.
func (r *FileRepo) Create(ctx context.Context, data []byte) (*model.File, error) {
	sum := sha256.Sum256(data)
	f := &model.File{
		ID:        uuid.NewString(),
		Size:      int64(len(data)),
		Checksum:  hex.EncodeToString(sum[:]),
		CreatedAt: r.timeProvider.Now(),
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO files (id, data, size, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5)`, f.ID, data, f.Size, f.Checksum, f.CreatedAt); err != nil {
		return nil, mapErr(err, "create file")
	}
	r.logger.InfoContext(ctx, "file stored", "file_id", f.ID, "size", f.Size)
	return f, nil
}

// Get returns file metadata.
func (r *FileRepo) Get(ctx context.Context, id string) (*model.File, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("file %q not found", id)
	}
	f := &model.File{}
	err := r.DB.QueryRowContext(ctx, `SELECT id, size, checksum, created_at FROM files WHERE id = $1`, id).
		Scan(&f.ID, &f.Size, &f.Checksum, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("file %q not found", id)
	}
	if err != nil {
		return nil, mapErr(err, "get file %s", id)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

// GetData returns the stored bytes of a file.
func (r *FileRepo) GetData(ctx context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("file %q not found", id)
	}
	var data []byte
	err := r.DB.QueryRowContext(ctx, `SELECT data FROM files WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("file %q not found", id)
	}
	if err != nil {
		return nil, mapErr(err, "get file data %s", id)
	}
	return data, nil
}

// DeleteOrphans removes files created before cutoff that no job references.
func (r *FileRepo) DeleteOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM files f
		WHERE f.created_at < $1
		  AND NOT EXISTS (
		    SELECT 1 FROM jobs j WHERE j.specification->>'data_file' = f.id::text
		  )`, cutoff.UTC())
	if err != nil {
		return 0, mapErr(err, "delete orphaned files")
	}
	return res.RowsAffected()
}
