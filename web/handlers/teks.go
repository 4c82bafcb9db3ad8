package handlers

import (
	"errors"
	"net/http"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// ListTeks handles GET /api/teks - list teks visible to the user.
func (h *APIHandlers) ListTeks(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	q := r.URL.Query()
	filters := types.TekFilters{
		Species:    q.Get("species"),
		SearchTerm: q.Get("search"),
		PublicOnly: q.Get("public_only") == "true",
	}
	if q.Get("mine") == "true" {
		filters.CreatedBy = claims.UserID
	}

	result, err := h.teks.ListTeks(r.Context(), claims.UserID, filters, listOptions(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list teks", err)
		return
	}

	respondJSON(w, http.StatusOK, TekListResponse{
		Items:    result.Items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

// CreateTek handles POST /api/teks.
func (h *APIHandlers) CreateTek(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	var tek types.Tek
	if err := decodeJSON(r, &tek); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	tek.ID = 0
	tek.CreatedBy = claims.UserID
	tek.LikeCount, tek.ViewCount, tek.ImportCount = 0, 0, 0

	if err := h.teks.CreateTek(r.Context(), &tek); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid tek", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create tek", err)
		return
	}

	respondJSON(w, http.StatusCreated, tek)
}

// GetTek handles GET /api/teks/{id}.
func (h *APIHandlers) GetTek(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	tek, err := h.teks.GetTek(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tek not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get tek", err)
		return
	}

	respondJSON(w, http.StatusOK, tek)
}

// UpdateTek handles PUT /api/teks/{id} - owner only.
func (h *APIHandlers) UpdateTek(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	var tek types.Tek
	if err := decodeJSON(r, &tek); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	tek.ID = id
	tek.CreatedBy = claims.UserID

	if err := h.teks.UpdateTek(r.Context(), &tek); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tek not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid tek", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update tek", err)
		return
	}

	respondJSON(w, http.StatusOK, tek)
}

// DeleteTek handles DELETE /api/teks/{id} - owner only.
func (h *APIHandlers) DeleteTek(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	if err := h.teks.DeleteTek(r.Context(), claims.UserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tek not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete tek", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LikeTek handles POST /api/teks/{id}/like.
func (h *APIHandlers) LikeTek(w http.ResponseWriter, r *http.Request) {
	h.bumpTekCounter(w, r, "like_count")
}

// ViewTek handles POST /api/teks/{id}/view.
func (h *APIHandlers) ViewTek(w http.ResponseWriter, r *http.Request) {
	h.bumpTekCounter(w, r, "view_count")
}

// ImportTek handles POST /api/teks/{id}/import - seed a new grow from the
// tek's stage containers. The grow is returned unsaved; the client reviews
// it and creates it through POST /api/grows.
func (h *APIHandlers) ImportTek(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	tek, err := h.teks.GetTek(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tek not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get tek", err)
		return
	}

	if err := h.teks.IncrementTekCounter(r.Context(), id, "import_count"); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record import", err)
		return
	}

	grow := types.NewGrowFromTek(tek)
	respondJSON(w, http.StatusOK, NewGrowResponse(grow))
}

func (h *APIHandlers) bumpTekCounter(w http.ResponseWriter, r *http.Request, counter string) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	// Visibility check first: counters on invisible teks must look like 404.
	if _, err := h.teks.GetTek(r.Context(), claims.UserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tek not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get tek", err)
		return
	}

	if err := h.teks.IncrementTekCounter(r.Context(), id, counter); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update counter", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
