package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/service"
)

// FileHandlers serves raw job data uploads and downloads.
type FileHandlers struct {
	Svc      *service.StateStoreService
	MaxBytes int64
	Logger   *slog.Logger
}

// Upload handles POST /api/files. The request body is stored verbatim.
func (h *FileHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.MaxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "too_large", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "read_failed", Err: err})
		return
	}

	f, err := h.Svc.UploadFile(r.Context(), data)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, f)
}

func fileID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", apperrors.ValidationField("id", "file id is required")
	}
	return id, nil
}

// Get handles GET /api/files/{id}.
func (h *FileHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	f, err := h.Svc.GetFile(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, f)
}

// Data handles GET /api/files/{id}/data.
func (h *FileHandlers) Data(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	data, err := h.Svc.GetFileData(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.Logger.DebugContext(r.Context(), "file download interrupted", "file_id", id, "error", err)
	}
}
