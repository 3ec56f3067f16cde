// Package data implements the PostgreSQL state store and the Postgres message transport.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/data/pgxutil"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// ErrVersionConflict is returned when a row changed between read and write. Repositories
// retry it internally and surface it wrapped as a Conflict once attempts run out.
var ErrVersionConflict = errors.New("version conflict")

const defaultMaxVersionRetries = 10

// RepoConfig holds options shared by all repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
	// MaxVersionRetries bounds read-modify-write attempts on version conflicts.
	MaxVersionRetries int
}

type repoBase struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

func newRepoBase(db *sql.DB, cfg RepoConfig, component string) repoBase {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxVersionRetries <= 0 {
		cfg.MaxVersionRetries = defaultMaxVersionRetries
	}
	return repoBase{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", component),
	}
}

// withVersionRetry runs fn until it stops failing with ErrVersionConflict.
func (b *repoBase) withVersionRetry(ctx context.Context, what string, fn func(attempt int) error) error {
	err := pgxutil.WithRetry(ctx, pgxutil.RetryConfig{
		Attempts: b.cfg.MaxVersionRetries,
		Retryable: func(err error) bool {
			return errors.Is(err, ErrVersionConflict)
		},
	}, func(attempt int) error {
		if attempt > 1 {
			b.logger.DebugContext(ctx, "retrying after version conflict", "operation", what, "attempt", attempt)
		}
		return fn(attempt)
	})
	if errors.Is(err, ErrVersionConflict) {
		return apperrors.Wrapf(err, apperrors.ErrCodeConflict, "%s: concurrent updates, retries exhausted", what)
	}
	return err
}

// mapStateError converts state-model rejections into coded application errors.
func mapStateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrPhaseOrderingViolation):
		return apperrors.Wrap(err, apperrors.ErrCodePhaseOrdering, "phase ordering violation")
	case errors.Is(err, state.ErrInvalidStateChange):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidStateChange, "invalid state change")
	default:
		return err
	}
}

// mapErr maps driver errors, leaving already coded errors untouched.
func mapErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if apperrors.GetCode(err) != "" || errors.Is(err, ErrVersionConflict) {
		return err
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.GetCode(mapped) != "" {
		return mapped
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func decodeState(raw []byte) (state.State, error) {
	var s state.State
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	s.Normalize()
	return s, nil
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func cloneNullableInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}
