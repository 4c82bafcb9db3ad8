// Package storage provides composable storage interfaces for the
// cultivation tracker.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Every query that reads
// or writes user-owned data is scoped by user id; a row owned by another
// user is reported as ErrNotFound, never as a permission error.
package storage

import (
	"context"
	"time"

	"github.com/mycotrack/myco/pkg/types"
)

// GrowStore provides CRUD and pagination for grows and their flushes.
type GrowStore interface {
	// CreateGrow inserts a new grow and assigns its id.
	CreateGrow(ctx context.Context, grow *types.Grow) error

	// GetGrow retrieves one grow with its flush list embedded.
	// Returns ErrNotFound if it doesn't exist or belongs to another user.
	GetGrow(ctx context.Context, userID, id int64) (*types.Grow, error)

	// ListGrows retrieves the user's grows with pagination. Flushes are
	// embedded on each result.
	ListGrows(ctx context.Context, userID int64, opts ListOptions) (*PaginatedResult[types.Grow], error)

	// UpdateGrow persists a full grow record (wholesale save). Flushes on
	// the record are NOT written by this call; they are managed through
	// the flush methods. Returns ErrNotFound on miss.
	UpdateGrow(ctx context.Context, grow *types.Grow) error

	// DeleteGrow removes a grow and its flushes.
	DeleteGrow(ctx context.Context, userID, id int64) error

	// CreateFlush inserts a flush under the given user's grow.
	CreateFlush(ctx context.Context, userID int64, flush *types.Flush) error

	// UpdateFlush updates a flush by id under the given user's grow.
	UpdateFlush(ctx context.Context, userID int64, flush *types.Flush) error

	// DeleteFlush removes one flush.
	DeleteFlush(ctx context.Context, userID, growID, flushID int64) error

	// ListFlushes returns a grow's flushes ordered by harvest date.
	ListFlushes(ctx context.Context, userID, growID int64) ([]types.Flush, error)

	// Close releases any resources held by the store.
	Close() error
}

// TekStore provides CRUD and search for cultivation templates.
type TekStore interface {
	CreateTek(ctx context.Context, tek *types.Tek) error

	// GetTek retrieves one tek visible to the user: their own, or any
	// public one.
	GetTek(ctx context.Context, userID, id int64) (*types.Tek, error)

	// ListTeks returns teks visible to the user matching the filters.
	ListTeks(ctx context.Context, userID int64, filters types.TekFilters, opts ListOptions) (*PaginatedResult[types.Tek], error)

	// UpdateTek persists a tek; only the owner may update.
	UpdateTek(ctx context.Context, tek *types.Tek) error

	// DeleteTek removes a tek; only the owner may delete.
	DeleteTek(ctx context.Context, userID, id int64) error

	// IncrementTekCounter atomically bumps one engagement counter
	// ("like_count", "view_count", or "import_count").
	IncrementTekCounter(ctx context.Context, id int64, counter string) error
}

// GatewayStore provides CRUD for IoT gateways and their entities.
type GatewayStore interface {
	CreateGateway(ctx context.Context, gw *types.IoTGateway) error
	GetGateway(ctx context.Context, userID, id int64) (*types.IoTGateway, error)
	ListGateways(ctx context.Context, userID int64) ([]types.IoTGateway, error)
	UpdateGateway(ctx context.Context, gw *types.IoTGateway) error
	DeleteGateway(ctx context.Context, userID, id int64) error

	// CreateEntities inserts one or more entities under a gateway in a
	// single transaction.
	CreateEntities(ctx context.Context, gatewayID int64, entities []types.IoTEntity) ([]types.IoTEntity, error)

	// ListEntities returns all entities of a gateway.
	ListEntities(ctx context.Context, gatewayID int64) ([]types.IoTEntity, error)

	// GetEntity returns one entity of a gateway.
	GetEntity(ctx context.Context, gatewayID, entityID int64) (*types.IoTEntity, error)

	// UpdateEntity updates mutable entity fields (friendly name, device
	// class, enablement).
	UpdateEntity(ctx context.Context, entity *types.IoTEntity) error

	// DeleteEntities removes the given entities from a gateway. All ids
	// must exist under the gateway, otherwise ErrNotFound and nothing is
	// deleted.
	DeleteEntities(ctx context.Context, gatewayID int64, entityIDs []int64) error

	// LinkEntities points the given entities at a grow and stage. All ids
	// must exist under the gateway, otherwise ErrNotFound and nothing is
	// linked.
	LinkEntities(ctx context.Context, gatewayID int64, entityIDs []int64, growID int64, stage string) ([]types.IoTEntity, error)

	// UnlinkEntities clears grow/stage links, making the entities
	// linkable again.
	UnlinkEntities(ctx context.Context, gatewayID int64, entityIDs []int64) ([]types.IoTEntity, error)

	// ListEntitiesForGrow returns all entities linked to a grow, across
	// gateways, for display grouping by stage.
	ListEntitiesForGrow(ctx context.Context, growID int64) ([]types.IoTEntity, error)

	// UpdateEntityState records the last observed state of an entity.
	UpdateEntityState(ctx context.Context, entityID int64, state string, at time.Time) error
}

// UserStore provides account persistence.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrDuplicate if the
	// username is taken.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id int64) (*types.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
}
