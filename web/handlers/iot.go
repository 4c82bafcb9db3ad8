package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mycotrack/myco/internal/homeassistant"
	"github.com/mycotrack/myco/internal/sensor"
	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// ListGateways handles GET /api/iot-gateways.
func (h *APIHandlers) ListGateways(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	gateways, err := h.gateways.ListGateways(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list gateways", err)
		return
	}

	respondJSON(w, http.StatusOK, gateways)
}

// CreateGateway handles POST /api/iot-gateways.
func (h *APIHandlers) CreateGateway(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())

	var gw types.IoTGateway
	if err := decodeJSON(r, &gw); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	gw.ID = 0
	gw.UserID = claims.UserID

	if err := h.gateways.CreateGateway(r.Context(), &gw); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid gateway", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create gateway", err)
		return
	}

	respondJSON(w, http.StatusCreated, gw)
}

// GetGateway handles GET /api/iot-gateways/{id}.
func (h *APIHandlers) GetGateway(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, gw)
}

// UpdateGateway handles PUT /api/iot-gateways/{id}.
func (h *APIHandlers) UpdateGateway(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	var gw types.IoTGateway
	if err := decodeJSON(r, &gw); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	gw.ID = id
	gw.UserID = claims.UserID

	if err := h.gateways.UpdateGateway(r.Context(), &gw); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "gateway not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid gateway", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update gateway", err)
		return
	}

	h.dropGatewayClient(id)
	respondJSON(w, http.StatusOK, gw)
}

// DeleteGateway handles DELETE /api/iot-gateways/{id}.
func (h *APIHandlers) DeleteGateway(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	if err := h.gateways.DeleteGateway(r.Context(), claims.UserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "gateway not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete gateway", err)
		return
	}

	h.dropGatewayClient(id)
	w.WriteHeader(http.StatusNoContent)
}

// TestGateway handles POST /api/iot-gateways/{id}/test - check
// connectivity and persist the result on the is_active flag.
func (h *APIHandlers) TestGateway(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	reachable := h.gatewayClient(gw).Ping(r.Context()) == nil
	if gw.IsActive != reachable {
		gw.IsActive = reachable
		if err := h.gateways.UpdateGateway(r.Context(), gw); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save gateway status", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]bool{"reachable": reachable})
}

// DiscoverEntities handles GET /api/iot-gateways/{id}/discover - list the
// entities available on the Home Assistant instance, flagging which
// domains can be linked to grows.
func (h *APIHandlers) DiscoverEntities(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	states, err := h.gatewayClient(gw).ListStates(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "gateway unreachable", err)
		return
	}

	type discovered struct {
		EntityName   string `json:"entity_name"`
		FriendlyName string `json:"friendly_name,omitempty"`
		Domain       string `json:"domain"`
		DeviceClass  string `json:"device_class,omitempty"`
		State        string `json:"state,omitempty"`
		Linkable     bool   `json:"linkable"`
	}

	out := make([]discovered, 0, len(states))
	for _, s := range states {
		domain, _, found := strings.Cut(s.EntityID, ".")
		if !found {
			continue
		}
		d := discovered{
			EntityName: s.EntityID,
			Domain:     domain,
			State:      s.State,
			Linkable:   types.IsLinkableEntityDomain(domain),
		}
		if v, ok := s.Attributes["friendly_name"].(string); ok {
			d.FriendlyName = v
		}
		if v, ok := s.Attributes["device_class"].(string); ok {
			d.DeviceClass = v
		}
		out = append(out, d)
	}

	respondJSON(w, http.StatusOK, out)
}

// ListEntities handles GET /api/iot-gateways/{id}/entities.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	entities, err := h.gateways.ListEntities(r.Context(), gw.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}

	respondJSON(w, http.StatusOK, entities)
}

// CreateEntities handles POST /api/iot-gateways/{id}/entities - enable a
// batch of discovered entities on the gateway.
func (h *APIHandlers) CreateEntities(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	var entities []types.IoTEntity
	if err := decodeJSON(r, &entities); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	created, err := h.gateways.CreateEntities(r.Context(), gw.ID, entities)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid entities", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create entities", err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// entityBatchRequest identifies a set of entities for bulk operations.
type entityBatchRequest struct {
	EntityIDs []int64 `json:"entity_ids"`
	GrowID    int64   `json:"grow_id,omitempty"`
	Stage     string  `json:"stage,omitempty"`
}

// DeleteEntities handles POST /api/iot-gateways/{id}/entities/bulk-delete.
// All ids must belong to the gateway or nothing is deleted.
func (h *APIHandlers) DeleteEntities(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	var req entityBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	if err := h.gateways.DeleteEntities(r.Context(), gw.ID, req.EntityIDs); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "one or more entities not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid request", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete entities", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LinkEntities handles POST /api/iot-gateways/{id}/entities/link - point a
// batch of entities at one of the user's grows and a stage. The grow must
// belong to the same user; all entity ids must belong to the gateway.
func (h *APIHandlers) LinkEntities(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	var req entityBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	if _, err := h.grows.GetGrow(r.Context(), claims.UserID, req.GrowID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to check grow", err)
		return
	}

	linked, err := h.gateways.LinkEntities(r.Context(), gw.ID, req.EntityIDs, req.GrowID, req.Stage)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "one or more entities not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid link request", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to link entities", err)
		return
	}

	respondJSON(w, http.StatusOK, linked)
}

// UnlinkEntities handles POST /api/iot-gateways/{id}/entities/unlink.
func (h *APIHandlers) UnlinkEntities(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	var req entityBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	unlinked, err := h.gateways.UnlinkEntities(r.Context(), gw.ID, req.EntityIDs)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "one or more entities not found", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid unlink request", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to unlink entities", err)
		return
	}

	respondJSON(w, http.StatusOK, unlinked)
}

// GrowEntities handles GET /api/grows/{id}/iot-entities - the entities
// linked to a grow, for display grouped by stage.
func (h *APIHandlers) GrowEntities(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	if _, err := h.grows.GetGrow(r.Context(), claims.UserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "grow not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to check grow", err)
		return
	}

	entities, err := h.gateways.ListEntitiesForGrow(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}

	respondJSON(w, http.StatusOK, entities)
}

// EntityHistory handles
// GET /api/iot-gateways/{id}/entities/{entityId}/history?hours=&points= -
// proxy the gateway's recorded history, downsampled server-side.
func (h *APIHandlers) EntityHistory(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	entity, ok := h.loadEntity(w, r, gw.ID)
	if !ok {
		return
	}

	hours := parseInt(r.URL.Query().Get("hours"), 24)
	if hours < 1 {
		hours = 1
	}
	points := parseInt(r.URL.Query().Get("points"), 200)

	end := h.clock()
	start := end.Add(-time.Duration(hours) * time.Hour)

	history, err := h.gatewayClient(gw).GetHistory(r.Context(), entity.EntityName, start, end)
	if err != nil {
		respondError(w, http.StatusBadGateway, "gateway unreachable", err)
		return
	}

	respondJSON(w, http.StatusOK, sensor.Downsample(history, points))
}

// entityCommandRequest is the request body for entity commands.
type entityCommandRequest struct {
	// Action is "turn_on"/"turn_off" for switches, "set_value" for
	// number entities.
	Action string `json:"action"`

	// Value is required for "set_value".
	Value *float64 `json:"value,omitempty"`
}

// EntityCommand handles
// POST /api/iot-gateways/{id}/entities/{entityId}/command - forward a
// control command through the circuit-breaker client. The stored state is
// updated optimistically and reverted if the command fails.
func (h *APIHandlers) EntityCommand(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.loadGateway(w, r)
	if !ok {
		return
	}

	entity, ok := h.loadEntity(w, r, gw.ID)
	if !ok {
		return
	}

	var req entityCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	var (
		desired string
		command func(ctx context.Context) (*homeassistant.EntityState, error)
	)
	client := h.gatewayClient(gw)

	switch {
	case entity.Domain == types.EntityDomainSwitch && (req.Action == "turn_on" || req.Action == "turn_off"):
		on := req.Action == "turn_on"
		desired = "off"
		if on {
			desired = "on"
		}
		command = func(ctx context.Context) (*homeassistant.EntityState, error) {
			return client.SetSwitch(ctx, entity.EntityName, on)
		}
	case entity.Domain == types.EntityDomainNumber && req.Action == "set_value":
		if req.Value == nil {
			respondError(w, http.StatusBadRequest, "set_value requires a value", nil)
			return
		}
		value := *req.Value
		desired = strconv.FormatFloat(value, 'f', -1, 64)
		command = func(ctx context.Context) (*homeassistant.EntityState, error) {
			return client.SetNumber(ctx, entity.EntityName, value)
		}
	case entity.Domain != types.EntityDomainSwitch && entity.Domain != types.EntityDomainNumber:
		respondError(w, http.StatusBadRequest, "entity does not accept commands", nil)
		return
	default:
		respondError(w, http.StatusBadRequest, "unknown action", nil)
		return
	}

	// Optimistic update: record the desired state immediately so the UI
	// reflects the command, then revert to the snapshot on failure.
	now := h.clock()
	if err := h.gateways.UpdateEntityState(r.Context(), entity.ID, desired, now); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record entity state", err)
		return
	}

	snapshot, err := command(r.Context())
	if err != nil {
		revert := entity.LastState
		if snapshot != nil {
			revert = snapshot.State
		}
		if revertErr := h.gateways.UpdateEntityState(r.Context(), entity.ID, revert, now); revertErr != nil {
			respondError(w, http.StatusInternalServerError, "failed to revert entity state", revertErr)
			return
		}
		respondError(w, http.StatusBadGateway, "command failed", err)
		return
	}

	h.broadcast(EventEntityUpdated, entity.ID)
	respondJSON(w, http.StatusOK, map[string]string{"state": desired})
}

// loadGateway fetches the gateway named in the path after the ownership
// check, writing the error response itself on failure.
func (h *APIHandlers) loadGateway(w http.ResponseWriter, r *http.Request) (*types.IoTGateway, bool) {
	claims := UserFromContext(r.Context())
	id := extractInt64(r, "id")

	gw, err := h.gateways.GetGateway(r.Context(), claims.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "gateway not found", nil)
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get gateway", err)
		return nil, false
	}
	return gw, true
}

func (h *APIHandlers) loadEntity(w http.ResponseWriter, r *http.Request, gatewayID int64) (*types.IoTEntity, bool) {
	entityID := extractInt64(r, "entityId")

	entity, err := h.gateways.GetEntity(r.Context(), gatewayID, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get entity", err)
		return nil, false
	}
	return entity, true
}
