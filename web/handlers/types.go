package handlers

import (
	"github.com/mycotrack/myco/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

// GrowResponse wraps a grow with the derived stage-machine view so clients
// never re-implement index resolution or status classification.
type GrowResponse struct {
	*types.Grow

	CurrentStageIndex int                `json:"current_stage_index"`
	StageStatuses     []StageStatusEntry `json:"stage_statuses"`
	Completed         bool               `json:"completed"`
}

// StageStatusEntry is one row of the derived progression view.
type StageStatusEntry struct {
	Key    string            `json:"key"`
	Label  string            `json:"label"`
	Status types.StageStatus `json:"status"`
}

// NewGrowResponse computes the derived view for one grow.
func NewGrowResponse(grow *types.Grow) GrowResponse {
	index, _ := types.ResolveStageIndex(grow)
	statuses := grow.StageStatuses()

	entries := make([]StageStatusEntry, len(types.StageSequence))
	for i, desc := range types.StageSequence {
		entries[i] = StageStatusEntry{Key: desc.Key, Label: desc.Label, Status: statuses[i]}
	}

	return GrowResponse{
		Grow:              grow,
		CurrentStageIndex: index,
		StageStatuses:     entries,
		Completed:         grow.IsCompleted(),
	}
}

// GrowListResponse is the paginated response for GET /api/grows.
type GrowListResponse struct {
	Items    []GrowResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasMore  bool           `json:"has_more"`
}

// TekListResponse is the paginated response for GET /api/teks.
type TekListResponse struct {
	Items    []types.Tek `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	HasMore  bool        `json:"has_more"`
}

// EventType labels websocket push events.
const (
	EventGrowSaved     = "grow_saved"
	EventGrowAdvanced  = "grow_advanced"
	EventGrowDeleted   = "grow_deleted"
	EventEntityUpdated = "entity_updated"
)

// Event is the envelope pushed over the websocket.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}
