// Package errors maps pipeline failures onto a small set of labels for metrics tags, log
// attributes and notification dedup keys.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/domain/transform"
	apperrors "github.com/target/dataio-go/internal/errors"
)

// sentinels are checked in order; the first match wins.
var sentinels = []struct {
	target error
	label  string
}{
	{context.Canceled, string(apperrors.ErrCodeCanceled)},
	{context.DeadlineExceeded, string(apperrors.ErrCodeTimeout)},
	{state.ErrPhaseOrderingViolation, string(apperrors.ErrCodePhaseOrdering)},
	{state.ErrInvalidStateChange, string(apperrors.ErrCodeInvalidStateChange)},
	{transform.ErrInvalidFlow, "invalid_flow"},
	{redis.Nil, "redis_nil"},
}

// Classify returns the label for err, or "" for nil.
//
// Order of precedence: application error codes, known sentinels, Postgres SQLSTATE
// ("pg_" + code), network timeouts, then the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	for _, s := range sentinels {
		if goerrors.Is(err, s.target) {
			return s.label
		}
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) && pgErr.Code != "" {
		return "pg_" + pgErr.Code
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return string(apperrors.ErrCodeTimeout)
	}

	return typeLabel(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeLabel(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
