package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
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

	tagsJSON, err := marshalJSONB(tek.Tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSONB(tek.Stages)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal stages: %w", err)
	}

	now := time.Now()
	if tek.CreatedAt.IsZero() {
		tek.CreatedAt = now
	}
	tek.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO teks (created_by, name, description, species, variant, tags, is_public, stages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		tek.CreatedBy, tek.Name, tek.Description, tek.Species, tek.Variant, tagsJSON, tek.IsPublic, stagesJSON,
		tek.CreatedAt, tek.UpdatedAt,
	).Scan(&tek.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert tek: %w", err)
	}

	return nil
}

// GetTek retrieves a tek visible to the user: their own, or any public one.
func (s *Store) GetTek(ctx context.Context, userID, id int64) (*types.Tek, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tekColumns+` FROM teks WHERE id = $1 AND (created_by = $2 OR is_public)`,
		id, userID)

	tek, err := scanTek(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get tek: %w", err)
	}
	return tek, nil
}

// ListTeks returns teks visible to the user matching the filters.
func (s *Store) ListTeks(ctx context.Context, userID int64, filters types.TekFilters, opts storage.ListOptions) (*storage.PaginatedResult[types.Tek], error) {
	opts.Normalize()

	where := "WHERE (created_by = $1 OR is_public)"
	args := []interface{}{userID}

	if filters.PublicOnly {
		where += " AND is_public"
	}
	if filters.Species != "" {
		args = append(args, filters.Species)
		where += fmt.Sprintf(" AND species = $%d", len(args))
	}
	if filters.CreatedBy != 0 {
		args = append(args, filters.CreatedBy)
		where += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	if filters.SearchTerm != "" {
		pattern := "%" + filters.SearchTerm + "%"
		args = append(args, pattern)
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM teks "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count teks: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM teks %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		tekColumns, where, opts.SortBy, opts.SortOrder, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list teks: %w", err)
	}
	defer rows.Close()

	items := []types.Tek{}
	for rows.Next() {
		tek, err := scanTek(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan tek: %w", err)
		}
		items = append(items, *tek)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate teks: %w", err)
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

	tagsJSON, err := marshalJSONB(tek.Tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSONB(tek.Stages)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal stages: %w", err)
	}

	tek.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE teks SET name = $1, description = $2, species = $3, variant = $4, tags = $5, is_public = $6, stages = $7, updated_at = $8
		WHERE id = $9 AND created_by = $10`,
		tek.Name, tek.Description, tek.Species, tek.Variant, tagsJSON, tek.IsPublic, stagesJSON, tek.UpdatedAt,
		tek.ID, tek.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update tek: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// DeleteTek removes a tek; only the owner may delete.
func (s *Store) DeleteTek(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM teks WHERE id = $1 AND created_by = $2", id, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete tek: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read delete result: %w", err)
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
		fmt.Sprintf("UPDATE teks SET %s = %s + 1 WHERE id = $1", counter, counter), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to increment tek counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func scanTek(row rowScanner) (*types.Tek, error) {
	var (
		tek        types.Tek
		tagsJSON   []byte
		stagesJSON []byte
	)

	err := row.Scan(
		&tek.ID, &tek.CreatedBy, &tek.Name, &tek.Description, &tek.Species, &tek.Variant, &tagsJSON, &tek.IsPublic,
		&stagesJSON, &tek.LikeCount, &tek.ViewCount, &tek.ImportCount, &tek.CreatedAt, &tek.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &tek.Tags); err != nil {
			return nil, fmt.Errorf("postgres: failed to unmarshal tags: %w", err)
		}
	}

	if len(stagesJSON) > 0 {
		stages, err := types.DecodeStageMap(stagesJSON)
		if err != nil {
			log.Printf("postgres: tek %d has malformed stages document, using empty containers: %v", tek.ID, err)
		}
		tek.Stages = stages
	} else {
		tek.Stages = types.NewStageMap()
	}

	return &tek, nil
}
