package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/dataio-go/internal/errors"
)

var errInternal = errors.New("internal error")

// StatusForError maps an application error code to an HTTP status.
//
//	invalid_state_change     → 400
//	validation               → 400
//	phase_ordering_violation → 422
//	conflict                 → 409
//	not_found, foreign_key   → 404
//	timeout                  → 504
//	anything else            → 500
func StatusForError(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidStateChange, apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodePhaseOrdering:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeForeignKey:
		return http.StatusNotFound
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorCode returns the wire error code for err.
func errorCode(err error, status int) string {
	if code := apperrors.GetCode(err); code != "" && status != http.StatusInternalServerError {
		return string(code)
	}
	switch status {
	case http.StatusGatewayTimeout:
		return string(apperrors.ErrCodeTimeout)
	default:
		return string(apperrors.ErrCodeInternal)
	}
}

// WriteServiceError renders a service error. Server errors are logged and their details
// withheld from the client.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusForError(err)
	params := ErrorParams{
		Code:    status,
		ErrCode: errorCode(err, status),
		Err:     err,
		Field:   apperrors.GetField(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"error", err,
			)
		}
		params.Err = errInternal
	case status == http.StatusUnprocessableEntity && logger != nil:
		logger.ErrorContext(r.Context(), "phase ordering violation rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	WriteError(w, params)
}
