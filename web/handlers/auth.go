package handlers

import (
	"errors"
	"net/http"

	"github.com/mycotrack/myco/internal/auth"
	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /auth/register. A successful registration logs the
// user in immediately.
func (h *APIHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	if err := types.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	user := &types.User{
		Username:     req.Username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			respondError(w, http.StatusConflict, "username is taken", nil)
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid registration", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create user", err)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token", err)
		return
	}

	respondJSON(w, http.StatusCreated, TokenResponse{Token: token, User: user})
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /auth/login. A bad username and a bad password are
// indistinguishable in the response.
func (h *APIHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to look up user", err)
		return
	}

	if !user.IsActive || !auth.CheckPassword(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token", err)
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{Token: token, User: user})
}

// Me handles GET /auth/me - return the authenticated user.
func (h *APIHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	user, err := h.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load user", err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
