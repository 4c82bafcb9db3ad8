package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.Register(w, newRequest(t, 0, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Password: "correct-horse"}))
	require.Equal(t, http.StatusCreated, w.Code)

	var created TokenResponse
	decodeBody(t, w, &created)
	assert.NotEmpty(t, created.Token)
	require.NotNil(t, created.User)
	assert.Equal(t, "alice", created.User.Username)
	assert.Empty(t, created.User.PasswordHash, "hash must not leak in responses")

	claims, err := h.tokens.VerifyToken(created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, claims.UserID)

	w = httptest.NewRecorder()
	h.Login(w, newRequest(t, 0, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "correct-horse"}))
	require.Equal(t, http.StatusOK, w.Code)

	var logged TokenResponse
	decodeBody(t, w, &logged)
	assert.NotEmpty(t, logged.Token)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := RegisterRequest{Username: "alice", Password: "correct-horse"}

	w := httptest.NewRecorder()
	h.Register(w, newRequest(t, 0, http.MethodPost, "/auth/register", req))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	h.Register(w, newRequest(t, 0, http.MethodPost, "/auth/register", req))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h, _ := newTestHandlers(t)

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"empty username", RegisterRequest{Username: "", Password: "correct-horse"}},
		{"short password", RegisterRequest{Username: "alice", Password: "short"}},
		{"username too short", RegisterRequest{Username: "al", Password: "correct-horse"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Register(w, newRequest(t, 0, http.MethodPost, "/auth/register", tc.req))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLoginWrongCredentialsAreIndistinguishable(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	h.Register(w, newRequest(t, 0, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Password: "correct-horse"}))
	require.Equal(t, http.StatusCreated, w.Code)

	badPassword := httptest.NewRecorder()
	h.Login(badPassword, newRequest(t, 0, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "wrong-horse"}))

	noSuchUser := httptest.NewRecorder()
	h.Login(noSuchUser, newRequest(t, 0, http.MethodPost, "/auth/login",
		LoginRequest{Username: "mallory", Password: "correct-horse"}))

	assert.Equal(t, http.StatusUnauthorized, badPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, noSuchUser.Code)
	assert.JSONEq(t, badPassword.Body.String(), noSuchUser.Body.String())
}

func TestMe(t *testing.T) {
	h, store := newTestHandlers(t)
	userID := seedTestUser(t, store, "alice")

	w := httptest.NewRecorder()
	h.Me(w, newRequest(t, userID, http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	decodeBody(t, w, &user)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "alice", user.Username)

	w = httptest.NewRecorder()
	h.Me(w, newRequest(t, 0, http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
