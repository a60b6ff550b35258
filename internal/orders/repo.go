package orders

import (
	"context"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) Claim(ctx context.Context, orderID, courierID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND courier_id IS NULL", orderID, enums.OrderStatusInPreparation).
		Updates(map[string]any{
			"courier_id": courierID,
			"status":     enums.OrderStatusInDelivery,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID)
	return r.list(query, params, filters)
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	return r.list(query, params, filters)
}

func (r *repository) ListByCourier(ctx context.Context, courierID uuid.UUID, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Where("courier_id = ?", courierID)
	return r.list(query, params, filters)
}

func (r *repository) ListAvailable(ctx context.Context, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND courier_id IS NULL", enums.OrderStatusInPreparation)
	return r.list(query, params, ListFilters{})
}

func (r *repository) list(query *gorm.DB, params pagination.Params, filters ListFilters) ([]models.Order, *pagination.Cursor, error) {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	limit := pagination.LimitWithBuffer(params.Limit)

	var rows []models.Order
	err = query.
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	pageSize := pagination.NormalizeLimit(params.Limit)
	if len(rows) <= pageSize {
		return rows, nil, nil
	}

	rows = rows[:pageSize]
	last := rows[len(rows)-1]
	return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}
