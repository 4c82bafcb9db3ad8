package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

// CreateUser inserts a new user. Returns ErrDuplicate if the username is
// taken.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if user == nil {
		return storage.ErrInvalidInput
	}
	if err := types.ValidateUsername(user.Username); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", storage.ErrInvalidInput)
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_active, created_at)
		VALUES (?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.IsActive, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, is_active, created_at FROM users WHERE "+where, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsActive, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure. modernc.org/sqlite surfaces these as plain errors carrying the
// SQLITE_CONSTRAINT_UNIQUE message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
