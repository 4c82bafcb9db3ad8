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

const growColumns = `
	id, user_id, name, description, species, variant, tags, location,
	spawn_type, spawn_amount_lbs, bulk_type, bulk_amount_lbs,
	inoculation_date, spawn_start_date, bulk_start_date, fruiting_start_date, harvest_date,
	full_spawn_colonization_date, full_bulk_colonization_date, fruiting_pin_date, harvest_completion_date,
	inoculation_status, spawn_colonization_status, bulk_colonization_status, fruiting_status, harvest_status,
	current_stage, status, total_cost, stages, created_at, updated_at`

// CreateGrow inserts a new grow and assigns its id.
func (s *Store) CreateGrow(ctx context.Context, grow *types.Grow) error {
	if grow == nil {
		return storage.ErrInvalidInput
	}
	if err := grow.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if grow.UserID == 0 {
		return fmt.Errorf("%w: grow user id is required", storage.ErrInvalidInput)
	}

	if grow.Stages == nil {
		grow.Stages = types.NewStageMap()
	}
	for _, key := range types.StageKeys {
		data := grow.Stages[key]
		data.FillIDs()
		grow.Stages[key] = data
	}

	tagsJSON, err := marshalJSON(grow.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSON(grow.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	now := time.Now()
	if grow.CreatedAt.IsZero() {
		grow.CreatedAt = now
	}
	grow.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO grows (
			user_id, name, description, species, variant, tags, location,
			spawn_type, spawn_amount_lbs, bulk_type, bulk_amount_lbs,
			inoculation_date, spawn_start_date, bulk_start_date, fruiting_start_date, harvest_date,
			full_spawn_colonization_date, full_bulk_colonization_date, fruiting_pin_date, harvest_completion_date,
			inoculation_status, spawn_colonization_status, bulk_colonization_status, fruiting_status, harvest_status,
			current_stage, status, total_cost, stages, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grow.UserID, grow.Name, grow.Description, grow.Species, grow.Variant, tagsJSON, grow.Location,
		grow.SpawnType, grow.SpawnAmountLbs, grow.BulkType, grow.BulkAmountLbs,
		grow.InoculationDate, grow.SpawnStartDate, grow.BulkStartDate, grow.FruitingStartDate, grow.HarvestDate,
		grow.FullSpawnColonizationDate, grow.FullBulkColonizationDate, grow.FruitingPinDate, grow.HarvestCompletionDate,
		grow.InoculationStatus, grow.SpawnColonizationStatus, grow.BulkColonizationStatus, grow.FruitingStatus, grow.HarvestStatus,
		grow.CurrentStage, grow.Status, grow.TotalCost, stagesJSON, grow.CreatedAt, grow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert grow: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read grow id: %w", err)
	}
	grow.ID = id
	return nil
}

// GetGrow retrieves one grow with its flushes embedded. Returns
// storage.ErrNotFound on a miss or an ownership mismatch.
func (s *Store) GetGrow(ctx context.Context, userID, id int64) (*types.Grow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+growColumns+` FROM grows WHERE id = ? AND user_id = ?`, id, userID)

	grow, err := scanGrow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get grow: %w", err)
	}

	flushes, err := s.listFlushesByGrow(ctx, grow.ID)
	if err != nil {
		return nil, err
	}
	grow.Flushes = flushes

	return grow, nil
}

// ListGrows retrieves the user's grows with pagination. Flushes are
// embedded on each result so list and get responses carry the same shape.
func (s *Store) ListGrows(ctx context.Context, userID int64, opts storage.ListOptions) (*storage.PaginatedResult[types.Grow], error) {
	opts.Normalize()

	where := "WHERE user_id = ?"
	args := []interface{}{userID}
	if opts.Species != "" {
		where += " AND species = ?"
		args = append(args, opts.Species)
	}
	if opts.ActiveOnly {
		// A grow is done when either the status or the stage pointer says
		// so; clients may set only one of them.
		where += " AND status != 'completed' AND current_stage != 'completed'"
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM grows "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count grows: %w", err)
	}

	// SortBy/SortOrder are whitelist-validated in Normalize.
	query := fmt.Sprintf("SELECT %s FROM grows %s ORDER BY %s %s LIMIT ? OFFSET ?",
		growColumns, where, opts.SortBy, opts.SortOrder)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grows: %w", err)
	}
	defer rows.Close()

	items := []types.Grow{}
	for rows.Next() {
		grow, err := scanGrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grow: %w", err)
		}
		items = append(items, *grow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grows: %w", err)
	}

	for i := range items {
		flushes, err := s.listFlushesByGrow(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Flushes = flushes
	}

	return &storage.PaginatedResult[types.Grow]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// UpdateGrow persists a full grow record. Flushes on the record are managed
// separately through the flush methods and are not written here.
func (s *Store) UpdateGrow(ctx context.Context, grow *types.Grow) error {
	if grow == nil || grow.ID == 0 {
		return storage.ErrInvalidInput
	}
	if err := grow.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if grow.Stages != nil {
		for _, key := range types.StageKeys {
			data := grow.Stages[key]
			data.FillIDs()
			grow.Stages[key] = data
		}
	}

	tagsJSON, err := marshalJSON(grow.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	stagesJSON, err := marshalJSON(grow.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	grow.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE grows SET
			name = ?, description = ?, species = ?, variant = ?, tags = ?, location = ?,
			spawn_type = ?, spawn_amount_lbs = ?, bulk_type = ?, bulk_amount_lbs = ?,
			inoculation_date = ?, spawn_start_date = ?, bulk_start_date = ?, fruiting_start_date = ?, harvest_date = ?,
			full_spawn_colonization_date = ?, full_bulk_colonization_date = ?, fruiting_pin_date = ?, harvest_completion_date = ?,
			inoculation_status = ?, spawn_colonization_status = ?, bulk_colonization_status = ?, fruiting_status = ?, harvest_status = ?,
			current_stage = ?, status = ?, total_cost = ?, stages = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		grow.Name, grow.Description, grow.Species, grow.Variant, tagsJSON, grow.Location,
		grow.SpawnType, grow.SpawnAmountLbs, grow.BulkType, grow.BulkAmountLbs,
		grow.InoculationDate, grow.SpawnStartDate, grow.BulkStartDate, grow.FruitingStartDate, grow.HarvestDate,
		grow.FullSpawnColonizationDate, grow.FullBulkColonizationDate, grow.FruitingPinDate, grow.HarvestCompletionDate,
		grow.InoculationStatus, grow.SpawnColonizationStatus, grow.BulkColonizationStatus, grow.FruitingStatus, grow.HarvestStatus,
		grow.CurrentStage, grow.Status, grow.TotalCost, stagesJSON, grow.UpdatedAt,
		grow.ID, grow.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update grow: %w", err)
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

// DeleteGrow removes a grow; flushes cascade.
func (s *Store) DeleteGrow(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM grows WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete grow: %w", err)
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

// CreateFlush inserts a flush under the given user's grow.
func (s *Store) CreateFlush(ctx context.Context, userID int64, flush *types.Flush) error {
	if flush == nil || flush.GrowID == 0 {
		return storage.ErrInvalidInput
	}

	if err := s.requireGrowOwnership(ctx, userID, flush.GrowID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flushes (grow_id, harvest_date, wet_yield_grams, dry_yield_grams, potency_mg_per_g)
		VALUES (?, ?, ?, ?, ?)`,
		flush.GrowID, flush.HarvestDate, flush.WetYieldGrams, flush.DryYieldGrams, flush.PotencyMgPerG,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flush: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read flush id: %w", err)
	}
	flush.ID = id
	return nil
}

// UpdateFlush updates a flush by id under the given user's grow.
func (s *Store) UpdateFlush(ctx context.Context, userID int64, flush *types.Flush) error {
	if flush == nil || flush.ID == 0 || flush.GrowID == 0 {
		return storage.ErrInvalidInput
	}

	if err := s.requireGrowOwnership(ctx, userID, flush.GrowID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE flushes SET harvest_date = ?, wet_yield_grams = ?, dry_yield_grams = ?, potency_mg_per_g = ?
		WHERE id = ? AND grow_id = ?`,
		flush.HarvestDate, flush.WetYieldGrams, flush.DryYieldGrams, flush.PotencyMgPerG,
		flush.ID, flush.GrowID,
	)
	if err != nil {
		return fmt.Errorf("failed to update flush: %w", err)
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

// DeleteFlush removes one flush.
func (s *Store) DeleteFlush(ctx context.Context, userID, growID, flushID int64) error {
	if err := s.requireGrowOwnership(ctx, userID, growID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM flushes WHERE id = ? AND grow_id = ?", flushID, growID)
	if err != nil {
		return fmt.Errorf("failed to delete flush: %w", err)
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

// ListFlushes returns a grow's flushes after verifying ownership.
func (s *Store) ListFlushes(ctx context.Context, userID, growID int64) ([]types.Flush, error) {
	if err := s.requireGrowOwnership(ctx, userID, growID); err != nil {
		return nil, err
	}
	return s.listFlushesByGrow(ctx, growID)
}

func (s *Store) listFlushesByGrow(ctx context.Context, growID int64) ([]types.Flush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, grow_id, harvest_date, wet_yield_grams, dry_yield_grams, potency_mg_per_g
		FROM flushes WHERE grow_id = ? ORDER BY harvest_date, id`, growID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flushes: %w", err)
	}
	defer rows.Close()

	flushes := []types.Flush{}
	for rows.Next() {
		var f types.Flush
		if err := rows.Scan(&f.ID, &f.GrowID, &f.HarvestDate, &f.WetYieldGrams, &f.DryYieldGrams, &f.PotencyMgPerG); err != nil {
			return nil, fmt.Errorf("failed to scan flush: %w", err)
		}
		flushes = append(flushes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flushes: %w", err)
	}

	return flushes, nil
}

// requireGrowOwnership returns storage.ErrNotFound unless the grow exists
// and belongs to the user.
func (s *Store) requireGrowOwnership(ctx context.Context, userID, growID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM grows WHERE id = ? AND user_id = ?", growID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check grow ownership: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanGrow.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrow(row rowScanner) (*types.Grow, error) {
	var (
		grow       types.Grow
		tagsJSON   sql.NullString
		stagesJSON sql.NullString
	)

	err := row.Scan(
		&grow.ID, &grow.UserID, &grow.Name, &grow.Description, &grow.Species, &grow.Variant, &tagsJSON, &grow.Location,
		&grow.SpawnType, &grow.SpawnAmountLbs, &grow.BulkType, &grow.BulkAmountLbs,
		&grow.InoculationDate, &grow.SpawnStartDate, &grow.BulkStartDate, &grow.FruitingStartDate, &grow.HarvestDate,
		&grow.FullSpawnColonizationDate, &grow.FullBulkColonizationDate, &grow.FruitingPinDate, &grow.HarvestCompletionDate,
		&grow.InoculationStatus, &grow.SpawnColonizationStatus, &grow.BulkColonizationStatus, &grow.FruitingStatus, &grow.HarvestStatus,
		&grow.CurrentStage, &grow.Status, &grow.TotalCost, &stagesJSON, &grow.CreatedAt, &grow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := unmarshalJSONText(tagsJSON.String, &grow.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if stagesJSON.Valid && stagesJSON.String != "" {
		stages, err := types.DecodeStageMap([]byte(stagesJSON.String))
		if err != nil {
			// Silent-recovery policy made loud: the grow stays readable
			// with empty containers, and the condition is logged.
			log.Printf("sqlite: grow %d has malformed stages document, using empty containers: %v", grow.ID, err)
		}
		grow.Stages = stages
	} else {
		grow.Stages = types.NewStageMap()
	}

	return &grow, nil
}
