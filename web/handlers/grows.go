package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// growWriteRequest is the write body for grow create and save. Unknown
// keys are rejected, but the derived read-only fields clients echo back
// from GrowResponse are accepted and discarded.
type growWriteRequest struct {
	types.Grow
	CurrentStageIndex json.RawMessage `json:"current_stage_index,omitempty"`
	StageStatuses     json.RawMessage `json:"stage_statuses,omitempty"`
	Completed         json.RawMessage `json:"completed,omitempty"`
}

// ListGrows handles GET /api/grows - list the user's grows with pagination
// and filtering.
func (h *APIHandlers) ListGrows(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	opts := listOptions(r)
	opts.Species = r.URL.Query().Get("species")
	opts.ActiveOnly = r.URL.Query().Get("active_only") == "true"

	result, err := h.grows.ListGrows(r.Context(), claims.UserID, opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list grows", err)
		return
	}

	items := make([]GrowResponse, len(result.Items))
	for i := range result.Items {
		items[i] = NewGrowResponse(&result.Items[i])
	}

	respondJSON(w, http.StatusOK, GrowListResponse{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

// CreateGrow handles POST /api/grows - create a new grow.
func (h *APIHandlers) CreateGrow(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	var req growWriteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	grow := req.Grow
	grow.ID = 0
	grow.UserID = claims.UserID

	if err := h.grows.CreateGrow(r.Context(), &grow); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid grow", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create grow", err)
		return
	}

	h.broadcast(EventGrowSaved, grow.ID)
	respondJSON(w, http.StatusCreated, NewGrowResponse(&grow))
}

// GetGrow handles GET /api/grows/{id}.
func (h *APIHandlers) GetGrow(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	grow, err := h.grows.GetGrow(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get grow", err)
		return
	}

	respondJSON(w, http.StatusOK, NewGrowResponse(grow))
}

// UpdateGrow handles PUT /api/grows/{id} - wholesale save. The flush list
// on the request body is ignored; flushes are managed through their own
// routes, and the response always carries the flushes reread from storage
// so a stale client copy cannot clobber recorded harvests.
func (h *APIHandlers) UpdateGrow(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	var req growWriteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	grow := req.Grow
	grow.ID = id
	grow.UserID = claims.UserID

	if err := h.grows.UpdateGrow(r.Context(), &grow); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid grow", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update grow", err)
		return
	}

	saved, err := h.grows.GetGrow(r.Context(), claims.UserID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload grow", err)
		return
	}

	h.broadcast(EventGrowSaved, saved.ID)
	respondJSON(w, http.StatusOK, NewGrowResponse(saved))
}

// DeleteGrow handles DELETE /api/grows/{id}.
func (h *APIHandlers) DeleteGrow(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	if err := h.grows.DeleteGrow(r.Context(), claims.UserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete grow", err)
		return
	}

	h.broadcast(EventGrowDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}

// AdvanceGrow handles POST /api/grows/{id}/advance - move the grow to the
// next stage. The first call on a fresh grow records inoculation and jumps
// straight to spawn colonization; advancing out of harvest completes the
// grow. Start dates already present are never overwritten.
func (h *APIHandlers) AdvanceGrow(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	grow, err := h.grows.GetGrow(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get grow", err)
		return
	}

	grow.AdvanceStage(h.clock())

	if err := h.grows.UpdateGrow(r.Context(), grow); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save grow", err)
		return
	}

	saved, err := h.grows.GetGrow(r.Context(), claims.UserID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload grow", err)
		return
	}

	h.broadcast(EventGrowAdvanced, saved.ID)
	respondJSON(w, http.StatusOK, NewGrowResponse(saved))
}

// ReplaceStageData handles PUT /api/grows/{id}/stages/{stageKey} - replace
// one stage's planning container wholesale.
func (h *APIHandlers) ReplaceStageData(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")
	stageKey := extractID(r, "stageKey")

	if !types.IsValidStageKey(stageKey) {
		respondError(w, http.StatusBadRequest, "unknown stage key", nil)
		return
	}

	var data types.StageData
	if err := decodeJSON(r, &data); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	grow, err := h.grows.GetGrow(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get grow", err)
		return
	}

	if grow.Stages == nil {
		grow.Stages = types.NewStageMap()
	}
	if err := grow.Stages.Replace(stageKey, data); err != nil {
		respondError(w, http.StatusBadRequest, "unknown stage key", err)
		return
	}
	// total_cost is normally client-supplied, but a stage edit through
	// this route carries no total, so re-derive it from the items.
	grow.TotalCost = grow.ComputeTotalCost()

	if err := h.grows.UpdateGrow(r.Context(), grow); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save grow", err)
		return
	}

	h.broadcast(EventGrowSaved, grow.ID)
	respondJSON(w, http.StatusOK, NewGrowResponse(grow))
}

// ListFlushes handles GET /api/grows/{id}/flushes.
func (h *APIHandlers) ListFlushes(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	flushes, err := h.grows.ListFlushes(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to list flushes", err)
		return
	}

	respondJSON(w, http.StatusOK, flushes)
}

// CreateFlush handles POST /api/grows/{id}/flushes.
func (h *APIHandlers) CreateFlush(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	var flush types.Flush
	if err := decodeJSON(r, &flush); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	flush.ID = 0
	flush.GrowID = id

	if err := h.grows.CreateFlush(r.Context(), claims.UserID, &flush); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid flush", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create flush", err)
		return
	}

	h.broadcast(EventGrowSaved, id)
	respondJSON(w, http.StatusCreated, flush)
}

// UpdateFlush handles PUT /api/grows/{id}/flushes/{flushId}.
func (h *APIHandlers) UpdateFlush(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")
	flushID := extractInt64(r, "flushId")

	var flush types.Flush
	if err := decodeJSON(r, &flush); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	flush.ID = flushID
	flush.GrowID = id

	if err := h.grows.UpdateFlush(r.Context(), claims.UserID, &flush); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "flush not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update flush", err)
		return
	}

	h.broadcast(EventGrowSaved, id)
	respondJSON(w, http.StatusOK, flush)
}

// DeleteFlush handles DELETE /api/grows/{id}/flushes/{flushId}.
func (h *APIHandlers) DeleteFlush(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")
	flushID := extractInt64(r, "flushId")

	if err := h.grows.DeleteFlush(r.Context(), claims.UserID, id, flushID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "flush not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete flush", err)
		return
	}

	h.broadcast(EventGrowSaved, id)
	w.WriteHeader(http.StatusNoContent)
}
