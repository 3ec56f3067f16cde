package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/dataio-go/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	StateStore *service.StateStoreService // Required
	Catalog    *service.CatalogService    // Required
	// Ready backs /readyz; nil reports ready whenever the process is up.
	Ready ReadyFunc
	// MaxUploadBytes caps POST /api/files bodies; 0 disables the cap.
	MaxUploadBytes int64
	Logger         *slog.Logger // Optional
}

// NewRouter creates and configures the API router with request id, logging and panic recovery.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	mux := http.NewServeMux()

	registerJobRoutes(mux, &JobHandlers{Svc: services.StateStore, Logger: logger})
	registerChunkRoutes(mux, &ChunkHandlers{Svc: services.StateStore, Logger: logger})
	registerHarvesterRoutes(mux, &HarvesterHandlers{
		Svc:     services.StateStore,
		Catalog: services.Catalog,
		Logger:  logger,
	})
	registerFileRoutes(mux, &FileHandlers{
		Svc:      services.StateStore,
		MaxBytes: services.MaxUploadBytes,
		Logger:   logger,
	})
	registerCatalogRoutes(mux, &CatalogHandlers{Svc: services.Catalog, Logger: logger})

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Ready, logger))
	mux.HandleFunc("/", notFound)

	return Chain(mux, RequestID(), Logging(logger), Recover(logger))
}

var errRouteNotFound = errors.New("no such route")

func notFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errRouteNotFound})
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/state", h.ApplyStateChange)
	mux.HandleFunc("POST /api/jobs/{id}/eoj", h.MarkPartitioned)
	mux.HandleFunc("POST /api/jobs/{id}/announce", h.Announce)
}

func registerChunkRoutes(mux *http.ServeMux, h *ChunkHandlers) {
	mux.HandleFunc("GET /api/jobs/{id}/chunks", h.ListChunks)
	mux.HandleFunc("POST /api/jobs/{id}/chunks", h.AddChunk)
	mux.HandleFunc("GET /api/jobs/{id}/chunks/{chunkId}", h.GetChunk)
	mux.HandleFunc("GET /api/jobs/{id}/chunks/{chunkId}/items", h.GetChunkItems)
	mux.HandleFunc("POST /api/jobs/{id}/chunks/{chunkId}/state", h.ApplyStateChange)
	mux.HandleFunc("POST /api/jobs/{id}/chunks/{chunkId}/processed", h.RecordProcessed)
	mux.HandleFunc("POST /api/jobs/{id}/chunks/{chunkId}/delivered", h.RecordDelivered)
}

func registerHarvesterRoutes(mux *http.ServeMux, h *HarvesterHandlers) {
	registerCRUD(mux, crudRoutes{
		Base:    "/api/harvesters",
		Create:  h.Create,
		List:    h.List,
		GetByID: h.Get,
		Update:  h.Update,
	})
}

func registerFileRoutes(mux *http.ServeMux, h *FileHandlers) {
	mux.HandleFunc("POST /api/files", h.Upload)
	mux.HandleFunc("GET /api/files/{id}", h.Get)
	mux.HandleFunc("GET /api/files/{id}/data", h.Data)
}

func registerCatalogRoutes(mux *http.ServeMux, h *CatalogHandlers) {
	registerCRUD(mux, crudRoutes{
		Base:    "/api/flows",
		Create:  h.CreateFlow,
		List:    h.ListFlows,
		GetByID: h.GetFlow,
		Update:  h.UpdateFlow,
	})
	registerCRUD(mux, crudRoutes{
		Base:    "/api/sinks",
		Create:  h.CreateSink,
		List:    h.ListSinks,
		GetByID: h.GetSink,
		Update:  h.UpdateSink,
	})
}

// crudRoutes describes the create/list/get/update routes of a versioned resource.
// There is no delete: jobs pin the versions they were created with.
type crudRoutes struct {
	Base    string
	Create  http.HandlerFunc
	List    http.HandlerFunc
	GetByID http.HandlerFunc
	Update  http.HandlerFunc
}

func registerCRUD(mux *http.ServeMux, cfg crudRoutes) {
	if cfg.Base == "" {
		panic("registerCRUD: Base must not be empty") //nolint:forbidigo // Fail fast during server setup.
	}
	if cfg.Create == nil || cfg.List == nil || cfg.GetByID == nil || cfg.Update == nil {
		panic("registerCRUD: nil handler for base " + cfg.Base) //nolint:forbidigo // Fail fast during server setup.
	}

	mux.Handle("POST "+cfg.Base, cfg.Create)
	mux.Handle("GET "+cfg.Base, cfg.List)
	mux.Handle("GET "+cfg.Base+"/{id}", cfg.GetByID)
	mux.Handle("PUT "+cfg.Base+"/{id}", cfg.Update)
}
