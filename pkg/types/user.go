package types

import (
	"fmt"
	"strings"
	"time"
)

// User is one account. Grows, teks, and gateways are exclusively owned by
// their user; every storage query scopes by user id.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash; it never appears in API responses.
	PasswordHash string `json:"-"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ValidateUsername checks a username for registration.
func ValidateUsername(username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return fmt.Errorf("username is required")
	}
	if len(name) < 3 || len(name) > 64 {
		return fmt.Errorf("username must be 3-64 characters")
	}
	return nil
}
