package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

const tekColumns = `
	id, created_by, name, description, species, variant, tags, is_public,
	stages, like_count, view_count, import_count, created_at, updated_at`

// tekCounters whitelists the engagement counters IncrementTekCounter may
// touch; the column name is interpolated into SQL.
var tekCounters = map[string]bool{
	"like_count":   true,
	"view_count":   true,
	"import_count": true,
}

// CreateTek inserts a new tek and assigns its id.
func (s *Store) CreateTek(ctx context.Context, tek *types.Tek) error {
	if tek == nil {
		return storage.ErrInvalidInput
	}
	if err := tek.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if tek.CreatedBy == 0 {
		return fmt.Errorf("%w: tek creator is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := marshalJSON(tek.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSON(tek.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	now := time.Now()
	if tek.CreatedAt.IsZero() {
		tek.CreatedAt = now
	}
	tek.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO teks (created_by, name, description, species, variant, tags, is_public, stages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tek.CreatedBy, tek.Name, tek.Description, tek.Species, tek.Variant, tagsJSON, tek.IsPublic, stagesJSON,
		tek.CreatedAt, tek.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tek: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read tek id: %w", err)
	}
	tek.ID = id
	return nil
}

// GetTek retrieves a tek visible to the user: their own, or any public one.
func (s *Store) GetTek(ctx context.Context, userID, id int64) (*types.Tek, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tekColumns+` FROM teks WHERE id = ? AND (created_by = ? OR is_public = 1)`,
		id, userID)

	tek, err := scanTek(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tek: %w", err)
	}
	return tek, nil
}

// ListTeks returns teks visible to the user matching the filters.
func (s *Store) ListTeks(ctx context.Context, userID int64, filters types.TekFilters, opts storage.ListOptions) (*storage.PaginatedResult[types.Tek], error) {
	opts.Normalize()

	where := "WHERE (created_by = ? OR is_public = 1)"
	args := []interface{}{userID}

	if filters.PublicOnly {
		where += " AND is_public = 1"
	}
	if filters.Species != "" {
		where += " AND species = ?"
		args = append(args, filters.Species)
	}
	if filters.CreatedBy != 0 {
		where += " AND created_by = ?"
		args = append(args, filters.CreatedBy)
	}
	if filters.SearchTerm != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		pattern := "%" + filters.SearchTerm + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM teks "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count teks: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM teks %s ORDER BY %s %s LIMIT ? OFFSET ?",
		tekColumns, where, opts.SortBy, opts.SortOrder)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list teks: %w", err)
	}
	defer rows.Close()

	items := []types.Tek{}
	for rows.Next() {
		tek, err := scanTek(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tek: %w", err)
		}
		items = append(items, *tek)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teks: %w", err)
	}

	return &storage.PaginatedResult[types.Tek]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// UpdateTek persists a tek; only the owner may update.
func (s *Store) UpdateTek(ctx context.Context, tek *types.Tek) error {
	if tek == nil || tek.ID == 0 {
		return storage.ErrInvalidInput
	}
	if err := tek.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	tagsJSON, err := marshalJSON(tek.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSON(tek.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	tek.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE teks SET name = ?, description = ?, species = ?, variant = ?, tags = ?, is_public = ?, stages = ?, updated_at = ?
		WHERE id = ? AND created_by = ?`,
		tek.Name, tek.Description, tek.Species, tek.Variant, tagsJSON, tek.IsPublic, stagesJSON, tek.UpdatedAt,
		tek.ID, tek.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update tek: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// DeleteTek removes a tek; only the owner may delete.
func (s *Store) DeleteTek(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM teks WHERE id = ? AND created_by = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tek: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// IncrementTekCounter atomically bumps one engagement counter.
func (s *Store) IncrementTekCounter(ctx context.Context, id int64, counter string) error {
	if !tekCounters[counter] {
		return fmt.Errorf("%w: unknown tek counter %q", storage.ErrInvalidInput, counter)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE teks SET %s = %s + 1 WHERE id = ?", counter, counter), id)
	if err != nil {
		return fmt.Errorf("failed to increment tek counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func scanTek(row rowScanner) (*types.Tek, error) {
	var (
		tek        types.Tek
		tagsJSON   sql.NullString
		stagesJSON sql.NullString
	)

	err := row.Scan(
		&tek.ID, &tek.CreatedBy, &tek.Name, &tek.Description, &tek.Species, &tek.Variant, &tagsJSON, &tek.IsPublic,
		&stagesJSON, &tek.LikeCount, &tek.ViewCount, &tek.ImportCount, &tek.CreatedAt, &tek.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := unmarshalJSONText(tagsJSON.String, &tek.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if stagesJSON.Valid && stagesJSON.String != "" {
		stages, err := types.DecodeStageMap([]byte(stagesJSON.String))
		if err != nil {
			log.Printf("sqlite: tek %d has malformed stages document, using empty containers: %v", tek.ID, err)
		}
		tek.Stages = stages
	} else {
		tek.Stages = types.NewStageMap()
	}

	return &tek, nil
}
