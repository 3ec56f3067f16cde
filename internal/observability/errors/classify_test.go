package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/domain/transform"
	apperrors "github.com/target/dataio-go/internal/errors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error", apperrors.NotFound("job 3"), "not_found"},
		{"wrapped app error", fmt.Errorf("deliver: %w", apperrors.Conflict("version")), "conflict"},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"phase ordering", fmt.Errorf("apply: %w", state.ErrPhaseOrderingViolation), "phase_ordering_violation"},
		{"invalid flow", fmt.Errorf("compile: %w", transform.ErrInvalidFlow), "invalid_flow"},
		{"redis nil", fmt.Errorf("get state: %w", redis.Nil), "redis_nil"},
		{"postgres", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), "pg_23505"},
		{"net timeout", fmt.Errorf("post sink: %w", timeoutErr{}), "timeout"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
		{"typed", fmt.Errorf("dial: %w", &net.DNSError{Name: "sink"}), "net_dnserror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
