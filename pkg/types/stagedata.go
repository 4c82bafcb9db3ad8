package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Item is one cost/inventory line item inside a stage's planning data.
// String fields may carry opaque client-encrypted values; the server treats
// them as passthrough text.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Vendor      string `json:"vendor,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	Cost        string `json:"cost,omitempty"`
	URL         string `json:"url,omitempty"`

	CreatedDate    string `json:"created_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// EnvironmentalCondition is one named target range (temperature, humidity,
// CO2, ...) for a stage.
type EnvironmentalCondition struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	LowerBound string `json:"lower_bound,omitempty"`
	UpperBound string `json:"upper_bound,omitempty"`
	Unit       string `json:"unit,omitempty"`
}

// TaskTemplate is one recurring task description for a stage.
type TaskTemplate struct {
	ID                  string `json:"id"`
	Action              string `json:"action"`
	Frequency           string `json:"frequency,omitempty"`
	DaysAfterStageStart string `json:"days_after_stage_start,omitempty"`
}

// StageData is the per-stage bag of optional planning data. It is opaque to
// the stage machine: nothing in resolution, classification, or advancement
// reads it.
type StageData struct {
	Items                   []Item                   `json:"items"`
	EnvironmentalConditions []EnvironmentalCondition `json:"environmental_conditions"`
	Tasks                   []TaskTemplate           `json:"tasks"`
	Notes                   string                   `json:"notes"`
}

// NewStageData returns an empty container with non-nil collections, the
// shape the wire format expects.
func NewStageData() StageData {
	return StageData{
		Items:                   []Item{},
		EnvironmentalConditions: []EnvironmentalCondition{},
		Tasks:                   []TaskTemplate{},
	}
}

// FillIDs assigns a UUID to every item, condition, and task that arrived
// without an id. Client-supplied ids are kept as-is.
func (d *StageData) FillIDs() {
	for i := range d.Items {
		if d.Items[i].ID == "" {
			d.Items[i].ID = uuid.NewString()
		}
	}
	for i := range d.EnvironmentalConditions {
		if d.EnvironmentalConditions[i].ID == "" {
			d.EnvironmentalConditions[i].ID = uuid.NewString()
		}
	}
	for i := range d.Tasks {
		if d.Tasks[i].ID == "" {
			d.Tasks[i].ID = uuid.NewString()
		}
	}
}

// StageMap maps each of the five stage keys to its planning data.
type StageMap map[string]StageData

// NewStageMap builds a map with an empty container for every stage.
func NewStageMap() StageMap {
	m := make(StageMap, len(StageKeys))
	for _, key := range StageKeys {
		m[key] = NewStageData()
	}
	return m
}

// Validate rejects containers filed under unknown stage keys. Container
// contents are not validated beyond that; they are planning data owned by
// the client.
func (m StageMap) Validate() error {
	for key := range m {
		if !IsValidStageKey(key) {
			return fmt.Errorf("unknown stage key %q", key)
		}
	}
	return nil
}

// Replace swaps in a new container for one stage. The whole container is
// replaced; there is no partial-update protocol. Missing collection slices
// are normalized to empty and missing ids filled in.
func (m StageMap) Replace(key string, data StageData) error {
	if !IsValidStageKey(key) {
		return fmt.Errorf("unknown stage key %q", key)
	}
	if data.Items == nil {
		data.Items = []Item{}
	}
	if data.EnvironmentalConditions == nil {
		data.EnvironmentalConditions = []EnvironmentalCondition{}
	}
	if data.Tasks == nil {
		data.Tasks = []TaskTemplate{}
	}
	data.FillIDs()
	m[key] = data
	return nil
}

// Clone returns a deep copy of the map. Used when seeding a grow from a tek
// so later edits never write through to the template.
func (m StageMap) Clone() StageMap {
	out := make(StageMap, len(m))
	for key, data := range m {
		copied := StageData{
			Items:                   append([]Item{}, data.Items...),
			EnvironmentalConditions: append([]EnvironmentalCondition{}, data.EnvironmentalConditions...),
			Tasks:                   append([]TaskTemplate{}, data.Tasks...),
			Notes:                   data.Notes,
		}
		out[key] = copied
	}
	return out
}
