package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/pkg/types"
)

func TestNewStageMap_AllStagesPresent(t *testing.T) {
	m := types.NewStageMap()
	require.Len(t, m, 5)
	for _, key := range types.StageKeys {
		data, ok := m[key]
		require.True(t, ok, "missing stage %s", key)
		assert.NotNil(t, data.Items)
		assert.NotNil(t, data.EnvironmentalConditions)
		assert.NotNil(t, data.Tasks)
	}
}

func TestStageMapValidate_RejectsUnknownKey(t *testing.T) {
	m := types.StageMap{"pinning": types.NewStageData()}
	assert.Error(t, m.Validate())
}

func TestStageMapReplace(t *testing.T) {
	m := types.NewStageMap()

	err := m.Replace("bogus", types.NewStageData())
	assert.Error(t, err)

	data := types.StageData{
		Items: []types.Item{{Description: "coir brick"}},
		Notes: "field capacity",
	}
	require.NoError(t, m.Replace(types.StageBulkColonization, data))

	got := m[types.StageBulkColonization]
	assert.Equal(t, "field capacity", got.Notes)
	require.Len(t, got.Items, 1)
	assert.NotEmpty(t, got.Items[0].ID, "server fills missing item ids")
	assert.NotNil(t, got.EnvironmentalConditions, "nil collections normalized")
	assert.NotNil(t, got.Tasks)
}

func TestStageDataFillIDs_KeepsClientIDs(t *testing.T) {
	data := types.StageData{
		Items: []types.Item{{ID: "client-1", Description: "jar"}, {Description: "lid"}},
		Tasks: []types.TaskTemplate{{Action: "mist"}},
	}
	data.FillIDs()

	assert.Equal(t, "client-1", data.Items[0].ID)
	assert.NotEmpty(t, data.Items[1].ID)
	assert.NotEmpty(t, data.Tasks[0].ID)
}

func TestStageMapClone_IsDeep(t *testing.T) {
	m := types.NewStageMap()
	data := m[types.StageFruiting]
	data.Items = []types.Item{{ID: "i1", Description: "perlite"}}
	m[types.StageFruiting] = data

	clone := m.Clone()
	clone[types.StageFruiting].Items[0].Description = "changed"

	assert.Equal(t, "perlite", m[types.StageFruiting].Items[0].Description)
}
