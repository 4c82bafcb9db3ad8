package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/internal/auth"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	assert.True(t, auth.CheckPassword("correct horse battery", hash))
	assert.False(t, auth.CheckPassword("wrong password", hash))
}

func TestHashPassword_RejectsShort(t *testing.T) {
	_, err := auth.HashPassword("short")
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateToken(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenService_RejectsTamperedToken(t *testing.T) {
	svc, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateToken(42, "alice")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token + "x")
	assert.Error(t, err)
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	issuer, err := auth.NewTokenService("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := auth.NewTokenService("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuer.GenerateToken(1, "alice")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsExpiredToken(t *testing.T) {
	svc, err := auth.NewTokenService("test-secret", time.Nanosecond)
	require.NoError(t, err)

	token, err := svc.GenerateToken(1, "alice")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := auth.NewTokenService("", time.Hour)
	assert.Error(t, err)
}
