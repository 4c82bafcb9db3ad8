package types

import "time"

// Stage keys for the five sequential cultivation stages, in order.
const (
	StageInoculation       = "inoculation"
	StageSpawnColonization = "spawn_colonization"
	StageBulkColonization  = "bulk_colonization"
	StageFruiting          = "fruiting"
	StageHarvest           = "harvest"
)

// StageCompleted is the sentinel value used for both Grow.CurrentStage and
// Grow.Status once a grow has been advanced past harvest. Completion is
// represented as "fully through harvest", not as a sixth stage.
const StageCompleted = "completed"

// StageDescriptor describes one entry in the fixed stage sequence.
type StageDescriptor struct {
	// Key is the stable stage key used in wire payloads and as the
	// Grow.Stages map key.
	Key string

	// Label is the human-readable stage name.
	Label string

	// DateField is the JSON field name of the grow date that marks the
	// start of this stage.
	DateField string
}

// StageSequence is the fixed, ordered stage definition table. Order is
// significant: every other component of the stage machine indexes into it.
var StageSequence = [5]StageDescriptor{
	{Key: StageInoculation, Label: "Inoculation", DateField: "inoculation_date"},
	{Key: StageSpawnColonization, Label: "Spawn Colonization", DateField: "spawn_start_date"},
	{Key: StageBulkColonization, Label: "Bulk Colonization", DateField: "bulk_start_date"},
	{Key: StageFruiting, Label: "Fruiting", DateField: "fruiting_start_date"},
	{Key: StageHarvest, Label: "Harvest", DateField: "harvest_date"},
}

// StageKeys contains the five valid stage keys in stage order.
var StageKeys = []string{
	StageInoculation,
	StageSpawnColonization,
	StageBulkColonization,
	StageFruiting,
	StageHarvest,
}

// StageIndex returns the position of key in the stage sequence, or -1 when
// key is not one of the five stage keys. The completion sentinel is not a
// stage key and also returns -1.
func StageIndex(key string) int {
	for i, desc := range StageSequence {
		if desc.Key == key {
			return i
		}
	}
	return -1
}

// IsValidStageKey reports whether key names one of the five stages.
func IsValidStageKey(key string) bool {
	return StageIndex(key) >= 0
}

// StageResolution identifies which rule produced a resolved stage index, so
// callers can distinguish an explicit pointer from date inference and detect
// the silent-recovery path (an unrecognized pointer falling through to
// dates) instead of having it swallowed at the source.
type StageResolution string

const (
	// ResolvedCompleted means the grow's status or stage pointer equals
	// the completion sentinel.
	ResolvedCompleted StageResolution = "completed"

	// ResolvedPointer means the explicit current_stage pointer matched a
	// valid stage key.
	ResolvedPointer StageResolution = "pointer"

	// ResolvedDates means the index was inferred from populated date
	// fields because no pointer was set.
	ResolvedDates StageResolution = "dates"

	// ResolvedDateFallback means the pointer was set to an unrecognized
	// value and the index was inferred from dates instead.
	ResolvedDateFallback StageResolution = "date_fallback"

	// ResolvedNone means nothing resolved: no pointer, no dates. The
	// index is -1 ("not started").
	ResolvedNone StageResolution = "none"
)

// ResolveStageIndex derives the current stage index of a grow, in [-1, 4].
//
// Priority order, first match wins:
//  1. completed status or pointer -> 4 (harvest)
//  2. valid current_stage pointer -> its index
//  3. date inference from the most advanced stage backward
//
// An unrecognized pointer value does not fail; it falls through to date
// inference and the returned StageResolution reports the fallback.
func ResolveStageIndex(g *Grow) (int, StageResolution) {
	if g.Status == StageCompleted || g.CurrentStage == StageCompleted {
		return len(StageSequence) - 1, ResolvedCompleted
	}

	if g.CurrentStage != "" {
		if idx := StageIndex(g.CurrentStage); idx >= 0 {
			return idx, ResolvedPointer
		}
		idx := resolveFromDates(g)
		return idx, ResolvedDateFallback
	}

	idx := resolveFromDates(g)
	if idx < 0 {
		return -1, ResolvedNone
	}
	return idx, ResolvedDates
}

// resolveFromDates inspects stage start dates from the most advanced stage
// backward and returns the index of the first populated one, or -1.
func resolveFromDates(g *Grow) int {
	dates := g.stageStartDates()
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] != "" {
			return i
		}
	}
	return -1
}

// StageStatus classifies one stage of a grow relative to the resolved
// current stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
)

// ClassifyStage maps a stage index plus the resolved current index to one of
// {pending, active, completed}. When the grow as a whole is completed, every
// stage is completed; a strictly sequential process never has an active
// stage after a pending one.
func ClassifyStage(index, current int, growCompleted bool) StageStatus {
	if growCompleted {
		return StageStatusCompleted
	}
	switch {
	case index < current:
		return StageStatusCompleted
	case index == current:
		return StageStatusActive
	default:
		return StageStatusPending
	}
}

// LocalDateString formats t as a YYYY-MM-DD string in t's location. The
// year/month/day components are taken from the local calendar rather than
// converting through UTC, which would shift the date near midnight in many
// timezones.
func LocalDateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// AdvanceStage is the sole forward transition of the stage machine. It
// mutates the in-memory grow only; persistence is the caller's concern and
// this operation itself cannot fail.
//
// Transitions:
//   - not started or inoculation: sets both the inoculation date and the
//     spawn start date to today and jumps the pointer to spawn_colonization.
//     Inoculation is considered instantaneously complete once it starts.
//   - spawn, bulk, fruiting: advances the pointer one stage and sets the
//     destination's start date to today only if the field is still empty,
//     so a repeated advancement never overwrites a user-edited date.
//   - harvest: sets both status and pointer to the completion sentinel and
//     touches no date field.
//
// There is no backward transition; correcting a mistaken advancement means
// editing CurrentStage and the date fields directly.
func (g *Grow) AdvanceStage(now time.Time) {
	today := LocalDateString(now)
	current, _ := ResolveStageIndex(g)

	if g.Status == StageCompleted || g.CurrentStage == StageCompleted {
		return
	}

	switch current {
	case -1, 0:
		if g.InoculationDate == "" {
			g.InoculationDate = today
		}
		if g.SpawnStartDate == "" {
			g.SpawnStartDate = today
		}
		g.CurrentStage = StageSpawnColonization

	case len(StageSequence) - 1:
		g.Status = StageCompleted
		g.CurrentStage = StageCompleted

	default:
		next := current + 1
		g.setStageStartDateIfEmpty(next, today)
		g.CurrentStage = StageSequence[next].Key
	}
}

// stageStartDates returns the five stage start dates in stage order.
func (g *Grow) stageStartDates() [5]string {
	return [5]string{
		g.InoculationDate,
		g.SpawnStartDate,
		g.BulkStartDate,
		g.FruitingStartDate,
		g.HarvestDate,
	}
}

// setStageStartDateIfEmpty writes date into the start-date field for the
// stage at index, unless that field is already populated.
func (g *Grow) setStageStartDateIfEmpty(index int, date string) {
	fields := [5]*string{
		&g.InoculationDate,
		&g.SpawnStartDate,
		&g.BulkStartDate,
		&g.FruitingStartDate,
		&g.HarvestDate,
	}
	if index < 0 || index >= len(fields) {
		return
	}
	if *fields[index] == "" {
		*fields[index] = date
	}
}
