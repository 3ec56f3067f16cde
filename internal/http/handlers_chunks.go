package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
	apperrors "github.com/target/dataio-go/internal/errors"
	"github.com/target/dataio-go/internal/service"
)

// ChunkHandlers serves chunk and item endpoints nested under a job.
type ChunkHandlers struct {
	Svc    *service.StateStoreService
	Logger *slog.Logger
}

// RecordResponse reports whether a chunk result was stored or recognized as a replay.
type RecordResponse struct {
	Recorded bool `json:"recorded"`
}

func chunkKey(r *http.Request) (int64, int, error) {
	jobID, err := pathInt64(r, "id")
	if err != nil {
		return 0, 0, err
	}
	chunkID, err := pathChunkID(r, "chunkId")
	if err != nil {
		return 0, 0, err
	}
	return jobID, chunkID, nil
}

// ListChunks handles GET /api/jobs/{id}/chunks.
func (h *ChunkHandlers) ListChunks(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	limit, offset := chunkPage.parse(r.URL.Query())

	chunks, err := h.Svc.ListChunks(r.Context(), jobID, limit, offset)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if chunks == nil {
		chunks = []*model.Chunk{}
	}
	WriteJSON(w, http.StatusOK, chunks)
}

// AddChunk handles POST /api/jobs/{id}/chunks. The chunk's job id defaults to the path id.
func (h *ChunkHandlers) AddChunk(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathInt64(r, "id")
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var pc model.PartitionedChunk
	if !DecodeJSON(w, r, &pc) {
		return
	}
	if pc.Chunk.JobID == 0 {
		pc.Chunk.JobID = jobID
	}
	if pc.Chunk.JobID != jobID {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("chunk.job_id", "chunk.job_id does not match path"))
		return
	}

	chunk, err := h.Svc.AddChunk(r.Context(), pc)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, chunk)
}

// GetChunk handles GET /api/jobs/{id}/chunks/{chunkId}.
func (h *ChunkHandlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	jobID, chunkID, err := chunkKey(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	chunk, err := h.Svc.GetChunk(r.Context(), jobID, chunkID)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, chunk)
}

// GetChunkItems handles GET /api/jobs/{id}/chunks/{chunkId}/items.
func (h *ChunkHandlers) GetChunkItems(w http.ResponseWriter, r *http.Request) {
	jobID, chunkID, err := chunkKey(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	items, err := h.Svc.GetChunkItems(r.Context(), jobID, chunkID)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	WriteJSON(w, http.StatusOK, items)
}

// ApplyStateChange handles POST /api/jobs/{id}/chunks/{chunkId}/state.
func (h *ChunkHandlers) ApplyStateChange(w http.ResponseWriter, r *http.Request) {
	jobID, chunkID, err := chunkKey(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var c state.Change
	if !DecodeJSON(w, r, &c) {
		return
	}

	chunk, err := h.Svc.ApplyChunkStateChange(r.Context(), jobID, chunkID, c)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, chunk)
}

// RecordProcessed handles POST /api/jobs/{id}/chunks/{chunkId}/processed.
func (h *ChunkHandlers) RecordProcessed(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, state.PhaseProcessing)
}

// RecordDelivered handles POST /api/jobs/{id}/chunks/{chunkId}/delivered.
func (h *ChunkHandlers) RecordDelivered(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, state.PhaseDelivering)
}

func (h *ChunkHandlers) record(w http.ResponseWriter, r *http.Request, phase state.Phase) {
	jobID, chunkID, err := chunkKey(r)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	var result model.ChunkResult
	if !DecodeJSON(w, r, &result) {
		return
	}
	if result.Phase == "" {
		result.Phase = phase
	}
	switch {
	case result.Phase != phase:
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("phase", "result phase does not match endpoint"))
		return
	case result.JobID != 0 && result.JobID != jobID, result.ChunkID != 0 && result.ChunkID != chunkID:
		WriteServiceError(w, r, h.Logger, apperrors.Validation("result chunk key does not match path"))
		return
	}
	result.JobID, result.ChunkID = jobID, chunkID
	if err := result.Validate(); err != nil {
		WriteServiceError(w, r, h.Logger, apperrors.Validation(err.Error()))
		return
	}

	var recorded bool
	if phase == state.PhaseProcessing {
		recorded, err = h.Svc.RecordProcessedChunk(r.Context(), &result)
	} else {
		recorded, err = h.Svc.RecordDeliveredChunk(r.Context(), &result)
	}
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, RecordResponse{Recorded: recorded})
}
