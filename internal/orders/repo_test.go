package orders

import (
	"context"
	"testing"
	"time"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  store_id TEXT NOT NULL,
  courier_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending_confirmation',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  store_payout_status TEXT NOT NULL DEFAULT 'unpaid',
  delivery_payout_status TEXT NOT NULL DEFAULT 'unpaid',
  subtotal_cents INTEGER NOT NULL,
  service_fee_cents INTEGER NOT NULL,
  delivery_fee_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  commission_percent INTEGER NOT NULL,
  price_verified INTEGER NOT NULL DEFAULT 1,
  ready_for_pickup INTEGER NOT NULL DEFAULT 0,
  delivery_address TEXT NOT NULL,
  customer_name TEXT NOT NULL DEFAULT '',
  customer_phone TEXT NOT NULL DEFAULT '',
  customer_coords TEXT,
  notes TEXT,
  transaction_id TEXT,
  paid_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  price_verified INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`

	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(orderItems).Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, courierID *uuid.UUID) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:               uuid.New(),
		BuyerID:          uuid.New(),
		StoreID:          uuid.New(),
		CourierID:        courierID,
		Status:           status,
		PaymentStatus:    enums.PaymentStatusUnpaid,
		SubtotalCents:    100000,
		ServiceFeeCents:  5000,
		DeliveryFeeCents: 200000,
		TotalCents:       305000,
		DeliveryAddress:  "Calle 1 #2-03",
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRepository_ClaimRace(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, enums.OrderStatusInPreparation, nil)
	winner := uuid.New()
	loser := uuid.New()

	rows, err := repo.Claim(ctx, order.ID, winner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.Claim(ctx, order.ID, loser)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows, "second claim must lose")

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CourierID)
	assert.Equal(t, winner, *stored.CourierID)
	assert.Equal(t, enums.OrderStatusInDelivery, stored.Status)
}

func TestRepository_ClaimRequiresPreparation(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, enums.OrderStatusPendingPayment, nil)

	rows, err := repo.Claim(ctx, order.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestRepository_UpdateStatusFromIsConditional(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, enums.OrderStatusPendingConfirmation, nil)

	rows, err := repo.UpdateStatusFrom(ctx, order.ID, enums.OrderStatusPendingConfirmation, map[string]any{
		"status": enums.OrderStatusPendingPayment,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// The expected-from status no longer matches.
	rows, err = repo.UpdateStatusFrom(ctx, order.ID, enums.OrderStatusPendingConfirmation, map[string]any{
		"status": enums.OrderStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, stored.Status)
}

func TestRepository_ListByBuyerPaginates(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		order := &models.Order{
			ID:              uuid.New(),
			BuyerID:         buyerID,
			StoreID:         uuid.New(),
			Status:          enums.OrderStatusDelivered,
			SubtotalCents:   1000,
			TotalCents:      1000,
			DeliveryAddress: "Calle 1",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(order).Error)
	}

	page, cursor, err := repo.ListByBuyer(ctx, buyerID, pagination.Params{Limit: 2}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)

	rest, next, err := repo.ListByBuyer(ctx, buyerID, pagination.Params{Limit: 2, Cursor: pagination.EncodeCursor(*cursor)}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, next)
	assert.True(t, rest[0].CreatedAt.Before(page[1].CreatedAt) || rest[0].CreatedAt.Equal(page[1].CreatedAt))
}

func TestRepository_ListAvailableOnlyUnclaimed(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	available := seedOrder(t, db, enums.OrderStatusInPreparation, nil)
	courier := uuid.New()
	seedOrder(t, db, enums.OrderStatusInDelivery, &courier)
	seedOrder(t, db, enums.OrderStatusPendingPayment, nil)

	rows, _, err := repo.ListAvailable(ctx, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, available.ID, rows[0].ID)
}
