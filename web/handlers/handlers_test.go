package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/internal/auth"
	"github.com/mycotrack/myco/internal/storage/sqlite"
	"github.com/mycotrack/myco/pkg/types"
)

func newTestHandlers(t *testing.T) (*APIHandlers, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService("handlers-test-secret", time.Hour)
	require.NoError(t, err)

	h := NewAPIHandlers(store, store, store, store, tokens, nil, nil)
	return h, store
}

func seedTestUser(t *testing.T, store *sqlite.Store, username string) int64 {
	t.Helper()

	user := &types.User{
		Username:     username,
		PasswordHash: "x",
		IsActive:     true,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user.ID
}

// newRequest builds a request carrying verified claims for userID, the
// state RequireAuth leaves behind. Path values are set pairwise:
// newRequest(..., "id", "3").
func newRequest(t *testing.T, userID int64, method, target string, body interface{}, pathValues ...string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, target, reader)
	if userID != 0 {
		claims := &auth.Claims{UserID: userID, Username: fmt.Sprintf("user%d", userID)}
		r = r.WithContext(context.WithValue(r.Context(), userContextKey, claims))
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		r.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}
