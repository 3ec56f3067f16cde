// Package httpx serves the state store REST API used by pipeline stages, harvesters
// and operators.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	"github.com/target/dataio-go/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc    *service.StateStoreService
	Logger *slog.Logger
}

// CreateJob handles POST /api/jobs.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.CreateJob(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := ParseJobListQuery(r.URL.Query())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	page, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	job, err := h.Svc.GetJob(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ApplyStateChange handles POST /api/jobs/{id}/state.
func (h *JobHandlers) ApplyStateChange(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var c state.Change
	if !DecodeJSON(w, r, &c) {
		return
	}

	job, err := h.Svc.ApplyJobStateChange(r.Context(), id, c)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// MarkPartitioned handles POST /api/jobs/{id}/eoj.
func (h *JobHandlers) MarkPartitioned(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	job, err := h.Svc.MarkPartitioned(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Announce handles POST /api/jobs/{id}/announce, republishing the job to the partitioner.
func (h *JobHandlers) Announce(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if _, err := h.Svc.GetJob(r.Context(), id); err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.Svc.AnnounceJob(r.Context(), id); err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "announced": true})
}
