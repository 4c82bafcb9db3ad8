package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/internal/storage/postgres"
	"github.com/mycotrack/myco/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.Open(postgresTestDSN(t))
	require.NoError(t, err, "Open should succeed")

	t.Cleanup(func() {
		require.NoError(t, store.TruncateForTest(context.Background()))
		store.Close()
	})
	return store
}

func seedUser(t *testing.T, store *postgres.Store, username string) int64 {
	t.Helper()

	var id int64
	err := store.GetDB().QueryRow(
		"INSERT INTO users (username, password_hash, is_active) VALUES ($1, 'x', TRUE) RETURNING id",
		username).Scan(&id)
	require.NoError(t, err, "seeding user should succeed")
	return id
}

func TestGrowStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, "pg-alice")

	grow := &types.Grow{
		UserID:          userID,
		Name:            "Blue Oyster #1",
		Species:         "Pleurotus ostreatus",
		Tags:            []string{"oyster"},
		InoculationDate: "2026-03-01",
		CurrentStage:    types.StageInoculation,
	}
	require.NoError(t, store.CreateGrow(ctx, grow))
	require.NotZero(t, grow.ID)

	got, err := store.GetGrow(ctx, userID, grow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue Oyster #1", got.Name)
	assert.Equal(t, "2026-03-01", got.InoculationDate)
	assert.Equal(t, []string{"oyster"}, got.Tags)
	assert.Len(t, got.Stages, len(types.StageKeys))
}

func TestGrowStore_OwnershipScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, store, "pg-alice")
	bob := seedUser(t, store, "pg-bob")

	grow := &types.Grow{UserID: alice, Name: "Private", Species: "P. ostreatus"}
	require.NoError(t, store.CreateGrow(ctx, grow))

	_, err := store.GetGrow(ctx, bob, grow.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = store.DeleteGrow(ctx, bob, grow.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestGrowStore_UpdatePreservesFlushes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := seedUser(t, store, "pg-alice")

	grow := &types.Grow{UserID: userID, Name: "Tub", Species: "P. ostreatus"}
	require.NoError(t, store.CreateGrow(ctx, grow))

	flush := &types.Flush{GrowID: grow.ID, HarvestDate: "2026-04-10", WetYieldGrams: 320}
	require.NoError(t, store.CreateFlush(ctx, userID, flush))

	stale, err := store.GetGrow(ctx, userID, grow.ID)
	require.NoError(t, err)
	stale.Flushes = nil
	stale.Description = "updated"
	require.NoError(t, store.UpdateGrow(ctx, stale))

	got, err := store.GetGrow(ctx, userID, grow.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	require.Len(t, got.Flushes, 1)
	assert.Equal(t, 320.0, got.Flushes[0].WetYieldGrams)
}
