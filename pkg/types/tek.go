package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tek is a reusable cultivation template: the same per-stage planning data
// a grow carries, publishable to other users. Engagement counters track how
// the community interacts with public teks.
type Tek struct {
	ID        int64 `json:"id,omitempty"`
	CreatedBy int64 `json:"created_by,omitempty"`

	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Species     string   `json:"species"`
	Variant     string   `json:"variant,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    bool     `json:"is_public"`

	Stages StageMap `json:"stages,omitempty"`

	LikeCount   int64 `json:"like_count"`
	ViewCount   int64 `json:"view_count"`
	ImportCount int64 `json:"import_count"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks the tek before it is stored.
func (t *Tek) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tek name is required")
	}
	if strings.TrimSpace(t.Species) == "" {
		return fmt.Errorf("tek species is required")
	}
	if t.Stages != nil {
		if err := t.Stages.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TekFilters narrows tek list queries.
type TekFilters struct {
	// Species filters by exact species match.
	Species string

	// SearchTerm matches against name and description.
	SearchTerm string

	// PublicOnly restricts results to public teks.
	PublicOnly bool

	// CreatedBy filters by owning user id. Zero means no filter.
	CreatedBy int64
}

// NewGrowFromTek seeds a new, unsaved grow by copying a tek's descriptive
// fields and a deep copy of its stage containers. The grow starts with no
// dates, no pointer, and no status: stage index resolves to -1.
func NewGrowFromTek(tek *Tek) *Grow {
	grow := &Grow{
		Name:        tek.Name,
		Description: tek.Description,
		Species:     tek.Species,
		Variant:     tek.Variant,
		Tags:        append([]string{}, tek.Tags...),
		Stages:      NewStageMap(),
	}
	if tek.Stages != nil {
		grow.Stages = tek.Stages.Clone()
	}
	return grow
}

// DecodeStageMap parses a stored stages JSON document. A malformed document
// returns an empty map alongside the error so callers can choose between
// log-and-default (template copy keeps working with an empty grow) and
// propagation, rather than having the condition swallowed here.
func DecodeStageMap(raw []byte) (StageMap, error) {
	if len(raw) == 0 {
		return NewStageMap(), nil
	}
	var m StageMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return NewStageMap(), fmt.Errorf("malformed stages document: %w", err)
	}
	if err := m.Validate(); err != nil {
		return NewStageMap(), err
	}
	return m, nil
}
