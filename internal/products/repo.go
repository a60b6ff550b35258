package products

import (
	"context"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the catalog reads needed by order assembly.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a products repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	result := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND id IN ? AND is_active", storeID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}
