package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mycotrack/myco/internal/auth"
	"github.com/mycotrack/myco/internal/homeassistant"
	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// GatewayClientFactory builds a Home Assistant client for one gateway.
// The server installs the real homeassistant client; tests substitute a
// factory pointed at a local server.
type GatewayClientFactory func(gw *types.IoTGateway) GatewayClient

// GatewayClient is the slice of the Home Assistant client the handlers use.
type GatewayClient interface {
	Ping(ctx context.Context) error
	GetState(ctx context.Context, entityID string) (*homeassistant.EntityState, error)
	ListStates(ctx context.Context) ([]homeassistant.EntityState, error)
	GetHistory(ctx context.Context, entityID string, start, end time.Time) ([]homeassistant.EntityState, error)
	CallService(ctx context.Context, domain, service, entityID string) error
	SetSwitch(ctx context.Context, entityID string, on bool) (*homeassistant.EntityState, error)
	SetNumber(ctx context.Context, entityID string, value float64) (*homeassistant.EntityState, error)
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	grows    storage.GrowStore
	teks     storage.TekStore
	gateways storage.GatewayStore
	users    storage.UserStore

	tokens *auth.TokenService
	hub    *WebSocketHub

	newGatewayClient GatewayClientFactory

	// gatewayClients caches one client per gateway so circuit breaker
	// state accumulates across requests. Entries are dropped when the
	// gateway's connection settings change or the gateway is deleted.
	clientMu       sync.Mutex
	gatewayClients map[int64]GatewayClient

	// clock is swappable in tests; stage advancement reads "today" off it.
	clock func() time.Time
}

// NewAPIHandlers creates the handler set. The hub may be nil when websocket
// push is disabled.
func NewAPIHandlers(
	grows storage.GrowStore,
	teks storage.TekStore,
	gateways storage.GatewayStore,
	users storage.UserStore,
	tokens *auth.TokenService,
	hub *WebSocketHub,
	factory GatewayClientFactory,
) *APIHandlers {
	return &APIHandlers{
		grows:            grows,
		teks:             teks,
		gateways:         gateways,
		users:            users,
		tokens:           tokens,
		hub:              hub,
		newGatewayClient: factory,
		gatewayClients:   make(map[int64]GatewayClient),
		clock:            time.Now,
	}
}

// gatewayClient returns the cached client for a gateway, constructing it
// on first use. Reusing one client per gateway is what lets consecutive
// failures across requests open the circuit breaker.
func (h *APIHandlers) gatewayClient(gw *types.IoTGateway) GatewayClient {
	h.clientMu.Lock()
	defer h.clientMu.Unlock()

	if client, ok := h.gatewayClients[gw.ID]; ok {
		return client
	}
	client := h.newGatewayClient(gw)
	h.gatewayClients[gw.ID] = client
	return client
}

// dropGatewayClient evicts a gateway's cached client so the next request
// builds a fresh one with current settings and a closed breaker.
func (h *APIHandlers) dropGatewayClient(gatewayID int64) {
	h.clientMu.Lock()
	defer h.clientMu.Unlock()
	delete(h.gatewayClients, gatewayID)
}

// broadcast pushes an event to websocket clients when the hub is wired.
func (h *APIHandlers) broadcast(eventType string, payload interface{}) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(Event{Type: eventType, Payload: payload})
}

// listOptions parses shared pagination and sorting query parameters.
func listOptions(r *http.Request) storage.ListOptions {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 0)
	if limit > 1000 {
		limit = 1000
	}
	return storage.ListOptions{
		Page:      parseInt(q.Get("page"), 0),
		Limit:     limit,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
}

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// extractInt64 extracts a numeric path parameter; returns 0 when missing
// or malformed.
func extractInt64(r *http.Request, key string) int64 {
	val, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil {
		return 0
	}
	return val
}

// parseInt parses an integer from a string, returning defaultValue if
// parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// decodeJSON parses a request body, rejecting unknown keys so client typos
// surface as 400s instead of silently dropped fields.
func decodeJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing left to do but note it.
		log.Printf("failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
