package httpx

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/target/dataio-go/internal/domain/model"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/service"
)

// HarvesterHandlers serves harvester configuration endpoints. Updates are optimistic:
// the body must carry the version it was read at.
type HarvesterHandlers struct {
	Svc     *service.StateStoreService
	Catalog *service.CatalogService
	Logger  *slog.Logger
}

// List handles GET /api/harvesters. ?enabled=true restricts to enabled harvesters.
func (h *HarvesterHandlers) List(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	list, err := h.Catalog.ListHarvesters(r.Context(), enabledOnly)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if list == nil {
		list = []*model.HarvesterConfig{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// Create handles POST /api/harvesters.
func (h *HarvesterHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var cfg model.HarvesterConfig
	if !DecodeJSON(w, r, &cfg) {
		return
	}
	created, err := h.Catalog.CreateHarvester(r.Context(), &cfg)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/harvesters/{id}.
func (h *HarvesterHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	cfg, err := h.Svc.GetHarvesterConfig(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// Update handles PUT /api/harvesters/{id}. A stale version yields 409.
func (h *HarvesterHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var cfg model.HarvesterConfig
	if !DecodeJSON(w, r, &cfg) {
		return
	}
	if cfg.ID != 0 && cfg.ID != id {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("id", "id does not match path"))
		return
	}
	cfg.ID = id

	updated, err := h.Svc.UpdateHarvesterConfig(r.Context(), &cfg)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}
