package httpx

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/service"
)

// CatalogHandlers serves flow and sink definitions. Updates create a new version;
// nothing is ever deleted because jobs pin the versions they were created with.
type CatalogHandlers struct {
	Svc    *service.CatalogService
	Logger *slog.Logger
}

// CreateFlow handles POST /api/flows.
func (h *CatalogHandlers) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req model.FlowRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	flow, err := h.Svc.CreateFlow(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, flow)
}

// ListFlows handles GET /api/flows.
func (h *CatalogHandlers) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.Svc.ListFlows(r.Context())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if flows == nil {
		flows = []*model.Flow{}
	}
	WriteJSON(w, http.StatusOK, flows)
}

// GetFlow handles GET /api/flows/{id}. ?version= selects a historical version.
func (h *CatalogHandlers) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var version int64
	if v := strings.TrimSpace(r.URL.Query().Get("version")); v != "" {
		version, err = strconv.ParseInt(v, 10, 64)
		if err != nil || version < 0 {
			WriteServiceError(w, r, h.Logger, apperrors.ValidationField("version", "version must be a non-negative integer"))
			return
		}
	}
	flow, err := h.Svc.GetFlow(r.Context(), id, version)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, flow)
}

// UpdateFlow handles PUT /api/flows/{id}.
func (h *CatalogHandlers) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var req model.FlowRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	flow, err := h.Svc.UpdateFlow(r.Context(), id, &req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, flow)
}

// CreateSink handles POST /api/sinks.
func (h *CatalogHandlers) CreateSink(w http.ResponseWriter, r *http.Request) {
	var req model.SinkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sink, err := h.Svc.CreateSink(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sink)
}

// ListSinks handles GET /api/sinks.
func (h *CatalogHandlers) ListSinks(w http.ResponseWriter, r *http.Request) {
	sinks, err := h.Svc.ListSinks(r.Context())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if sinks == nil {
		sinks = []*model.SinkConfig{}
	}
	WriteJSON(w, http.StatusOK, sinks)
}

// GetSink handles GET /api/sinks/{id}.
func (h *CatalogHandlers) GetSink(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	sink, err := h.Svc.GetSink(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sink)
}

// UpdateSink handles PUT /api/sinks/{id}.
func (h *CatalogHandlers) UpdateSink(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var req model.SinkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sink, err := h.Svc.UpdateSink(r.Context(), id, &req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sink)
}
