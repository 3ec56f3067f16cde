package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid state change", apperrors.Wrap(state.ErrInvalidStateChange, apperrors.ErrCodeInvalidStateChange, "bad"), http.StatusBadRequest},
		{"validation", apperrors.Validation("bad"), http.StatusBadRequest},
		{"phase ordering", apperrors.Wrap(state.ErrPhaseOrderingViolation, apperrors.ErrCodePhaseOrdering, "early"), http.StatusUnprocessableEntity},
		{"conflict", apperrors.Conflictf("version %d is stale", 3), http.StatusConflict},
		{"not found", apperrors.NotFoundf("job %d not found", 1), http.StatusNotFound},
		{"foreign key", &apperrors.AppError{Code: apperrors.ErrCodeForeignKey, Message: "flow does not exist"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", apperrors.NotFoundf("x")), http.StatusNotFound},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteServiceError_HidesInternalDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)
	rec := httptest.NewRecorder()

	WriteServiceError(rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "internal", body.Error)
	assert.Equal(t, "internal error", body.Message)
}

func TestWriteServiceError_CarriesCodeAndField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	rec := httptest.NewRecorder()

	WriteServiceError(rec, req, nil, apperrors.ValidationField("specification.data_file", "data file does not exist"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "validation", body.Error)
	assert.Equal(t, "specification.data_file", body.Field)
	assert.Contains(t, body.Message, "data file does not exist")
}
