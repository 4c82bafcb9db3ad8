package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/pkg/types"
)

func TestStageSequenceOrder(t *testing.T) {
	keys := []string{
		"inoculation",
		"spawn_colonization",
		"bulk_colonization",
		"fruiting",
		"harvest",
	}
	for i, key := range keys {
		assert.Equal(t, key, types.StageSequence[i].Key)
		assert.Equal(t, i, types.StageIndex(key))
	}
	assert.Equal(t, -1, types.StageIndex("completed"))
	assert.Equal(t, -1, types.StageIndex("pinning"))
}

func TestResolveStageIndex_NotStarted(t *testing.T) {
	idx, src := types.ResolveStageIndex(&types.Grow{})
	assert.Equal(t, -1, idx)
	assert.Equal(t, types.ResolvedNone, src)
}

func TestResolveStageIndex_CompletedStatusWins(t *testing.T) {
	g := &types.Grow{
		Status:          types.StageCompleted,
		InoculationDate: "2024-01-01",
	}
	idx, src := types.ResolveStageIndex(g)
	assert.Equal(t, 4, idx)
	assert.Equal(t, types.ResolvedCompleted, src)

	g = &types.Grow{CurrentStage: types.StageCompleted}
	idx, src = types.ResolveStageIndex(g)
	assert.Equal(t, 4, idx)
	assert.Equal(t, types.ResolvedCompleted, src)
}

// Explicit pointer takes priority over date inference: a harvest date does
// not force index 4 when the pointer names an earlier stage.
func TestResolveStageIndex_PointerBeatsDates(t *testing.T) {
	g := &types.Grow{
		CurrentStage: types.StageBulkColonization,
		HarvestDate:  "2024-05-01",
	}
	idx, src := types.ResolveStageIndex(g)
	assert.Equal(t, 2, idx)
	assert.Equal(t, types.ResolvedPointer, src)
}

func TestResolveStageIndex_HarvestDateResolvesToFour(t *testing.T) {
	g := &types.Grow{
		InoculationDate: "2024-01-01",
		HarvestDate:     "2024-05-01",
	}
	idx, src := types.ResolveStageIndex(g)
	assert.Equal(t, 4, idx)
	assert.Equal(t, types.ResolvedDates, src)
}

func TestResolveStageIndex_DateInferenceBackward(t *testing.T) {
	cases := []struct {
		name string
		grow types.Grow
		want int
	}{
		{"inoculation only", types.Grow{InoculationDate: "2024-01-01"}, 0},
		{"through spawn", types.Grow{InoculationDate: "2024-01-01", SpawnStartDate: "2024-01-02"}, 1},
		{"through bulk", types.Grow{SpawnStartDate: "2024-01-02", BulkStartDate: "2024-01-10"}, 2},
		{"through fruiting", types.Grow{FruitingStartDate: "2024-02-01"}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, src := types.ResolveStageIndex(&tc.grow)
			assert.Equal(t, tc.want, idx)
			assert.Equal(t, types.ResolvedDates, src)
		})
	}
}

// An unrecognized pointer falls through to date inference, and the
// resolution source reports the fallback instead of swallowing it.
func TestResolveStageIndex_UnrecognizedPointerFallsBack(t *testing.T) {
	g := &types.Grow{
		CurrentStage:   "pinning",
		SpawnStartDate: "2024-01-02",
	}
	idx, src := types.ResolveStageIndex(g)
	assert.Equal(t, 1, idx)
	assert.Equal(t, types.ResolvedDateFallback, src)

	g = &types.Grow{CurrentStage: "pinning"}
	idx, src = types.ResolveStageIndex(g)
	assert.Equal(t, -1, idx)
	assert.Equal(t, types.ResolvedDateFallback, src)
}

// Classifier totality: every (index, current) pair yields exactly one of
// the three statuses, and exactly one stage is active while the grow runs.
func TestClassifyStage_Totality(t *testing.T) {
	for current := -1; current <= 4; current++ {
		activeCount := 0
		for i := 0; i < 5; i++ {
			status := types.ClassifyStage(i, current, false)
			switch status {
			case types.StageStatusPending, types.StageStatusActive, types.StageStatusCompleted:
			default:
				t.Fatalf("classify(%d, %d) returned %q", i, current, status)
			}
			if status == types.StageStatusActive {
				activeCount++
			}
		}
		if current >= 0 && current <= 4 {
			assert.Equal(t, 1, activeCount, "current=%d", current)
		} else {
			assert.Equal(t, 0, activeCount, "current=%d", current)
		}
	}
}

func TestClassifyStage_CompletedGrow(t *testing.T) {
	for i := 0; i < 5; i++ {
		assert.Equal(t, types.StageStatusCompleted, types.ClassifyStage(i, 4, true))
	}
}

// First transition sets both the inoculation date and the spawn start date
// to the same value and jumps the pointer to spawn colonization.
func TestAdvanceStage_FirstTransitionDoubleSet(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("UTC-7", -7*3600))
	g := &types.Grow{}
	g.AdvanceStage(now)

	assert.Equal(t, "2024-03-01", g.InoculationDate)
	assert.Equal(t, "2024-03-01", g.SpawnStartDate)
	assert.Equal(t, types.StageSpawnColonization, g.CurrentStage)
	assert.Empty(t, g.Status)
}

// Advancing into a stage whose start date is already populated leaves the
// date untouched; only the pointer moves.
func TestAdvanceStage_IdempotentOnPopulatedDates(t *testing.T) {
	g := &types.Grow{
		CurrentStage:      types.StageBulkColonization,
		FruitingStartDate: "2024-02-20",
	}
	g.AdvanceStage(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, types.StageFruiting, g.CurrentStage)
	assert.Equal(t, "2024-02-20", g.FruitingStartDate)
}

func TestAdvanceStage_SetsDateWhenEmpty(t *testing.T) {
	g := &types.Grow{CurrentStage: types.StageSpawnColonization}
	g.AdvanceStage(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, types.StageBulkColonization, g.CurrentStage)
	assert.Equal(t, "2024-03-01", g.BulkStartDate)
}

// Terminal transition: advancing from harvest sets both status and pointer
// to the completion sentinel and touches no date field.
func TestAdvanceStage_TerminalTransition(t *testing.T) {
	g := &types.Grow{
		CurrentStage: types.StageHarvest,
		HarvestDate:  "2024-04-01",
	}
	g.AdvanceStage(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, types.StageCompleted, g.Status)
	assert.Equal(t, types.StageCompleted, g.CurrentStage)
	assert.Equal(t, "2024-04-01", g.HarvestDate)
	assert.Empty(t, g.HarvestCompletionDate)
}

func TestAdvanceStage_NoOpAfterCompletion(t *testing.T) {
	g := &types.Grow{Status: types.StageCompleted, CurrentStage: types.StageCompleted}
	g.AdvanceStage(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, types.StageCompleted, g.CurrentStage)
	assert.Empty(t, g.InoculationDate)
}

// Full walk of a fresh grow through every stage to completion.
func TestAdvanceStage_FullScenario(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &types.Grow{}

	g.AdvanceStage(now)
	require.Equal(t, types.StageSpawnColonization, g.CurrentStage)
	require.Equal(t, "2024-03-01", g.InoculationDate)
	require.Equal(t, "2024-03-01", g.SpawnStartDate)

	g.AdvanceStage(now)
	require.Equal(t, types.StageBulkColonization, g.CurrentStage)
	require.Equal(t, "2024-03-01", g.BulkStartDate)

	g.AdvanceStage(now)
	require.Equal(t, types.StageFruiting, g.CurrentStage)

	g.AdvanceStage(now)
	require.Equal(t, types.StageHarvest, g.CurrentStage)

	g.AdvanceStage(now)
	require.Equal(t, types.StageCompleted, g.CurrentStage)
	require.Equal(t, types.StageCompleted, g.Status)

	idx, src := types.ResolveStageIndex(g)
	assert.Equal(t, 4, idx)
	assert.Equal(t, types.ResolvedCompleted, src)

	for _, status := range g.StageStatuses() {
		assert.Equal(t, types.StageStatusCompleted, status)
	}
}

// The local calendar date is used, never a UTC conversion: at 23:30 in a
// UTC-7 zone the formatted date must not jump to the next day.
func TestLocalDateString_NoUTCShift(t *testing.T) {
	zone := time.FixedZone("UTC-7", -7*3600)
	late := time.Date(2024, 3, 1, 23, 30, 0, 0, zone)
	assert.Equal(t, "2024-03-01", types.LocalDateString(late))
	assert.Equal(t, "2024-03-02", types.LocalDateString(late.UTC()))
}
