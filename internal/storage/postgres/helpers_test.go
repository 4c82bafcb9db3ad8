// Package postgres provides a PostgreSQL implementation of the storage
// interfaces. This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the application tables. It is intended
// for use in tests only; defined in the postgres package so it can reach
// the unexported db field, exported so postgres_test can call it.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
