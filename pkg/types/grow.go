package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Health status values for individual stages.
const (
	HealthHealthy      = "Healthy"
	HealthSuspect      = "Suspect"
	HealthContaminated = "Contaminated"
)

// ValidHealthStatuses contains all valid per-stage health status values.
var ValidHealthStatuses = []string{
	HealthHealthy,
	HealthSuspect,
	HealthContaminated,
}

// IsValidHealthStatus checks whether status is a valid per-stage health
// status. Empty string is valid (not set).
func IsValidHealthStatus(status string) bool {
	if status == "" {
		return true
	}
	for _, s := range ValidHealthStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Grow is the root record of one cultivation attempt.
//
// All date fields are local-calendar YYYY-MM-DD strings (empty when unset).
// The CurrentStage pointer, when set, holds one of the five stage keys or
// the completion sentinel; when unset, ResolveStageIndex infers the stage
// from populated dates.
type Grow struct {
	ID     int64 `json:"id,omitempty"`
	UserID int64 `json:"user_id,omitempty"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Species     string   `json:"species"`
	Variant     string   `json:"variant,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Location    string   `json:"location,omitempty"`

	SpawnType      string  `json:"spawn_type,omitempty"`
	SpawnAmountLbs float64 `json:"spawn_amount_lbs,omitempty"`
	BulkType       string  `json:"bulk_type,omitempty"`
	BulkAmountLbs  float64 `json:"bulk_amount_lbs,omitempty"`

	// Stage transition dates.
	InoculationDate   string `json:"inoculation_date,omitempty"`
	SpawnStartDate    string `json:"spawn_start_date,omitempty"`
	BulkStartDate     string `json:"bulk_start_date,omitempty"`
	FruitingStartDate string `json:"fruiting_start_date,omitempty"`
	HarvestDate       string `json:"harvest_date,omitempty"`

	// Milestone dates, set by explicit field edits rather than by the
	// advancement operation.
	FullSpawnColonizationDate string `json:"full_spawn_colonization_date,omitempty"`
	FullBulkColonizationDate  string `json:"full_bulk_colonization_date,omitempty"`
	FruitingPinDate           string `json:"fruiting_pin_date,omitempty"`
	HarvestCompletionDate     string `json:"harvest_completion_date,omitempty"`

	// Per-stage health statuses (Healthy | Suspect | Contaminated).
	InoculationStatus       string `json:"inoculation_status,omitempty"`
	SpawnColonizationStatus string `json:"spawn_colonization_status,omitempty"`
	BulkColonizationStatus  string `json:"bulk_colonization_status,omitempty"`
	FruitingStatus          string `json:"fruiting_status,omitempty"`
	HarvestStatus           string `json:"harvest_status,omitempty"`

	// CurrentStage is one of the five stage keys, the completion
	// sentinel, or empty (derive from dates).
	CurrentStage string `json:"current_stage,omitempty"`

	// Status is empty while the grow is running and "completed" after the
	// final advancement.
	Status string `json:"status,omitempty"`

	// TotalCost is independently settable; ComputeTotalCost derives the
	// sum of costed stage items when the caller wants it recalculated.
	TotalCost float64 `json:"total_cost,omitempty"`

	// Stages maps each of the five stage keys to its planning data.
	Stages StageMap `json:"stages,omitempty"`

	// Flushes are discrete harvest events. They live in their own table
	// and are always embedded on reads, including the update response.
	Flushes []Flush `json:"flushes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Flush is one discrete harvest event within the harvest stage.
type Flush struct {
	ID          int64  `json:"id,omitempty"`
	GrowID      int64  `json:"grow_id,omitempty"`
	HarvestDate string `json:"harvest_date,omitempty"`

	WetYieldGrams  float64 `json:"wet_yield_grams,omitempty"`
	DryYieldGrams  float64 `json:"dry_yield_grams,omitempty"`
	PotencyMgPerG  float64 `json:"potency_mg_per_g,omitempty"`
}

// Validate checks the grow for client-correctable problems before any
// storage or network work happens. It never mutates the record.
func (g *Grow) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("grow name is required")
	}
	if strings.TrimSpace(g.Species) == "" {
		return fmt.Errorf("grow species is required")
	}

	if g.CurrentStage != "" && g.CurrentStage != StageCompleted && !IsValidStageKey(g.CurrentStage) {
		return fmt.Errorf("unknown current_stage %q", g.CurrentStage)
	}
	if g.Status != "" && g.Status != StageCompleted {
		return fmt.Errorf("unknown status %q", g.Status)
	}

	for _, pair := range []struct{ field, value string }{
		{"inoculation_status", g.InoculationStatus},
		{"spawn_colonization_status", g.SpawnColonizationStatus},
		{"bulk_colonization_status", g.BulkColonizationStatus},
		{"fruiting_status", g.FruitingStatus},
		{"harvest_status", g.HarvestStatus},
	} {
		if !IsValidHealthStatus(pair.value) {
			return fmt.Errorf("invalid %s %q", pair.field, pair.value)
		}
	}

	for _, pair := range []struct{ field, value string }{
		{"inoculation_date", g.InoculationDate},
		{"spawn_start_date", g.SpawnStartDate},
		{"bulk_start_date", g.BulkStartDate},
		{"fruiting_start_date", g.FruitingStartDate},
		{"harvest_date", g.HarvestDate},
		{"full_spawn_colonization_date", g.FullSpawnColonizationDate},
		{"full_bulk_colonization_date", g.FullBulkColonizationDate},
		{"fruiting_pin_date", g.FruitingPinDate},
		{"harvest_completion_date", g.HarvestCompletionDate},
	} {
		if err := validateDateString(pair.field, pair.value); err != nil {
			return err
		}
	}

	if g.Stages != nil {
		if err := g.Stages.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateDateString accepts empty or YYYY-MM-DD. Dates are not required to
// be monotonic across stages; they remain freely editable at any time.
func validateDateString(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("invalid %s %q: must be YYYY-MM-DD", field, value)
	}
	return nil
}

// ComputeTotalCost sums the parseable cost figures of all stage items.
// Item costs are stored as strings (they may be opaque client-encrypted
// values); entries that do not parse as numbers are skipped.
func (g *Grow) ComputeTotalCost() float64 {
	var total float64
	for _, key := range StageKeys {
		data, ok := g.Stages[key]
		if !ok {
			continue
		}
		for _, item := range data.Items {
			cost, err := strconv.ParseFloat(strings.TrimSpace(item.Cost), 64)
			if err != nil {
				continue
			}
			total += cost
		}
	}
	return total
}

// IsCompleted reports whether the grow has been advanced past harvest.
func (g *Grow) IsCompleted() bool {
	return g.Status == StageCompleted || g.CurrentStage == StageCompleted
}

// StageStatuses classifies all five stages of the grow in stage order.
func (g *Grow) StageStatuses() [5]StageStatus {
	current, _ := ResolveStageIndex(g)
	completed := g.IsCompleted()

	var out [5]StageStatus
	for i := range StageSequence {
		out[i] = ClassifyStage(i, current, completed)
	}
	return out
}
