package orders

import (
	"context"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// UpdateStatusFrom applies updates only while the order still has the
	// expected status, returning the number of rows touched.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	// Claim atomically assigns the courier while the order is still
	// unclaimed. Zero rows means another courier won.
	Claim(ctx context.Context, orderID, courierID uuid.UUID) (int64, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	ListByCourier(ctx context.Context, courierID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error)
	ListAvailable(ctx context.Context, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
}
