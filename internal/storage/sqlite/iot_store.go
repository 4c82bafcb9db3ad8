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

const entityColumns = `
	id, gateway_id, entity_name, entity_type, friendly_name, domain, device_class,
	linked_grow_id, linked_stage, last_state, last_updated, created_at`

// CreateGateway inserts a new gateway and assigns its id.
func (s *Store) CreateGateway(ctx context.Context, gw *types.IoTGateway) error {
	if gw == nil {
		return storage.ErrInvalidInput
	}
	if err := gw.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if gw.UserID == 0 {
		return fmt.Errorf("%w: gateway user id is required", storage.ErrInvalidInput)
	}

	if gw.CreatedAt.IsZero() {
		gw.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO iot_gateways (user_id, type, name, description, api_url, api_key, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		gw.UserID, gw.Type, gw.Name, gw.Description, gw.APIURL, gw.APIKey, gw.IsActive, gw.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert gateway: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read gateway id: %w", err)
	}
	gw.ID = id
	return nil
}

// GetGateway retrieves one gateway owned by the user.
func (s *Store) GetGateway(ctx context.Context, userID, id int64) (*types.IoTGateway, error) {
	var gw types.IoTGateway
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, name, description, api_url, api_key, is_active, created_at
		FROM iot_gateways WHERE id = ? AND user_id = ?`, id, userID).Scan(
		&gw.ID, &gw.UserID, &gw.Type, &gw.Name, &gw.Description, &gw.APIURL, &gw.APIKey, &gw.IsActive, &gw.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway: %w", err)
	}
	return &gw, nil
}

// ListGateways returns all gateways owned by the user.
func (s *Store) ListGateways(ctx context.Context, userID int64) ([]types.IoTGateway, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, name, description, api_url, api_key, is_active, created_at
		FROM iot_gateways WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gateways: %w", err)
	}
	defer rows.Close()

	gateways := []types.IoTGateway{}
	for rows.Next() {
		var gw types.IoTGateway
		if err := rows.Scan(&gw.ID, &gw.UserID, &gw.Type, &gw.Name, &gw.Description, &gw.APIURL, &gw.APIKey, &gw.IsActive, &gw.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gateway: %w", err)
		}
		gateways = append(gateways, gw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gateways: %w", err)
	}

	return gateways, nil
}

// UpdateGateway persists gateway fields; only the owner may update.
func (s *Store) UpdateGateway(ctx context.Context, gw *types.IoTGateway) error {
	if gw == nil || gw.ID == 0 {
		return storage.ErrInvalidInput
	}
	if err := gw.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE iot_gateways SET type = ?, name = ?, description = ?, api_url = ?, api_key = ?, is_active = ?
		WHERE id = ? AND user_id = ?`,
		gw.Type, gw.Name, gw.Description, gw.APIURL, gw.APIKey, gw.IsActive, gw.ID, gw.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update gateway: %w", err)
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

// DeleteGateway removes a gateway; entities cascade.
func (s *Store) DeleteGateway(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM iot_gateways WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete gateway: %w", err)
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

// CreateEntities inserts entities under a gateway in one transaction. New
// entities start linkable: no grow, no stage.
func (s *Store) CreateEntities(ctx context.Context, gatewayID int64, entities []types.IoTEntity) ([]types.IoTEntity, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no entities provided", storage.ErrInvalidInput)
	}
	for i := range entities {
		if err := entities[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := make([]types.IoTEntity, 0, len(entities))
	now := time.Now()
	for _, e := range entities {
		e.GatewayID = gatewayID
		e.LinkedGrowID = 0
		e.LinkedStage = ""
		e.CreatedAt = now

		res, err := tx.ExecContext(ctx, `
			INSERT INTO iot_entities (gateway_id, entity_name, entity_type, friendly_name, domain, device_class,
				linked_grow_id, linked_stage, last_state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL, '', '', ?)`,
			e.GatewayID, e.EntityName, e.EntityType, e.FriendlyName, e.Domain, e.DeviceClass, e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert entity: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read entity id: %w", err)
		}
		e.ID = id
		created = append(created, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entities: %w", err)
	}

	return created, nil
}

// ListEntities returns all entities of a gateway.
func (s *Store) ListEntities(ctx context.Context, gatewayID int64) ([]types.IoTEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM iot_entities WHERE gateway_id = ? ORDER BY id`, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// GetEntity returns one entity of a gateway.
func (s *Store) GetEntity(ctx context.Context, gatewayID, entityID int64) (*types.IoTEntity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM iot_entities WHERE id = ? AND gateway_id = ?`, entityID, gatewayID)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// UpdateEntity updates mutable entity fields.
func (s *Store) UpdateEntity(ctx context.Context, entity *types.IoTEntity) error {
	if entity == nil || entity.ID == 0 {
		return storage.ErrInvalidInput
	}
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE iot_entities SET entity_name = ?, entity_type = ?, friendly_name = ?, domain = ?, device_class = ?
		WHERE id = ? AND gateway_id = ?`,
		entity.EntityName, entity.EntityType, entity.FriendlyName, entity.Domain, entity.DeviceClass,
		entity.ID, entity.GatewayID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
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

// DeleteEntities removes the given entities from a gateway. All ids must
// exist under the gateway; on a count mismatch nothing is deleted.
func (s *Store) DeleteEntities(ctx context.Context, gatewayID int64, entityIDs []int64) error {
	if len(entityIDs) == 0 {
		return fmt.Errorf("%w: no entity ids provided", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	count, err := countEntitiesTx(ctx, tx, gatewayID, entityIDs)
	if err != nil {
		return err
	}
	if count != len(entityIDs) {
		return storage.ErrNotFound
	}

	query := fmt.Sprintf("DELETE FROM iot_entities WHERE gateway_id = ? AND id IN (%s)",
		placeholders(len(entityIDs)))
	if _, err := tx.ExecContext(ctx, query, entityArgs(gatewayID, entityIDs)...); err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entity deletion: %w", err)
	}

	return nil
}

// LinkEntities points the given entities at a grow and stage.
func (s *Store) LinkEntities(ctx context.Context, gatewayID int64, entityIDs []int64, growID int64, stage string) ([]types.IoTEntity, error) {
	if len(entityIDs) == 0 {
		return nil, fmt.Errorf("%w: no entity ids provided", storage.ErrInvalidInput)
	}
	if !types.IsValidStageKey(stage) {
		return nil, fmt.Errorf("%w: unknown stage key %q", storage.ErrInvalidInput, stage)
	}

	return s.relinkEntities(ctx, gatewayID, entityIDs, sql.NullInt64{Int64: growID, Valid: true}, stage)
}

// UnlinkEntities clears grow/stage links, making the entities linkable
// again.
func (s *Store) UnlinkEntities(ctx context.Context, gatewayID int64, entityIDs []int64) ([]types.IoTEntity, error) {
	if len(entityIDs) == 0 {
		return nil, fmt.Errorf("%w: no entity ids provided", storage.ErrInvalidInput)
	}

	return s.relinkEntities(ctx, gatewayID, entityIDs, sql.NullInt64{}, "")
}

func (s *Store) relinkEntities(ctx context.Context, gatewayID int64, entityIDs []int64, growID sql.NullInt64, stage string) ([]types.IoTEntity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	count, err := countEntitiesTx(ctx, tx, gatewayID, entityIDs)
	if err != nil {
		return nil, err
	}
	if count != len(entityIDs) {
		return nil, storage.ErrNotFound
	}

	query := fmt.Sprintf(
		"UPDATE iot_entities SET linked_grow_id = ?, linked_stage = ? WHERE gateway_id = ? AND id IN (%s)",
		placeholders(len(entityIDs)))
	args := append([]interface{}{growID, stage}, entityArgs(gatewayID, entityIDs)...)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to relink entities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entity links: %w", err)
	}

	query = fmt.Sprintf("SELECT %s FROM iot_entities WHERE gateway_id = ? AND id IN (%s) ORDER BY id",
		entityColumns, placeholders(len(entityIDs)))
	rows, err := s.db.QueryContext(ctx, query, entityArgs(gatewayID, entityIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to reread entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// ListEntitiesForGrow returns all entities linked to a grow across
// gateways.
func (s *Store) ListEntitiesForGrow(ctx context.Context, growID int64) ([]types.IoTEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM iot_entities WHERE linked_grow_id = ? ORDER BY linked_stage, id`, growID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grow entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// UpdateEntityState records the last observed state of an entity.
func (s *Store) UpdateEntityState(ctx context.Context, entityID int64, state string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE iot_entities SET last_state = ?, last_updated = ? WHERE id = ?", state, at, entityID)
	if err != nil {
		return fmt.Errorf("failed to update entity state: %w", err)
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

func countEntitiesTx(ctx context.Context, tx *sql.Tx, gatewayID int64, entityIDs []int64) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM iot_entities WHERE gateway_id = ? AND id IN (%s)",
		placeholders(len(entityIDs)))
	var count int
	if err := tx.QueryRowContext(ctx, query, entityArgs(gatewayID, entityIDs)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func entityArgs(gatewayID int64, entityIDs []int64) []interface{} {
	args := make([]interface{}, 0, len(entityIDs)+1)
	args = append(args, gatewayID)
	for _, id := range entityIDs {
		args = append(args, id)
	}
	return args
}

func collectEntities(rows *sql.Rows) ([]types.IoTEntity, error) {
	entities := []types.IoTEntity{}
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row rowScanner) (*types.IoTEntity, error) {
	var (
		entity      types.IoTEntity
		linkedGrow  sql.NullInt64
		lastUpdated sql.NullTime
	)

	err := row.Scan(
		&entity.ID, &entity.GatewayID, &entity.EntityName, &entity.EntityType, &entity.FriendlyName,
		&entity.Domain, &entity.DeviceClass, &linkedGrow, &entity.LinkedStage, &entity.LastState,
		&lastUpdated, &entity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if linkedGrow.Valid {
		entity.LinkedGrowID = linkedGrow.Int64
	}
	if lastUpdated.Valid {
		entity.LastUpdated = lastUpdated.Time
	}

	return &entity, nil
}
