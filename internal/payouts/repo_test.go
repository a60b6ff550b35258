package payouts

import (
	"context"
	"testing"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payouts_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL,
  push_token TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
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
	withdrawals := `
CREATE TABLE IF NOT EXISTS withdrawal_requests (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  role TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  destination_account TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  reason TEXT,
  processed_by TEXT,
  processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`

	require.NoError(t, db.Exec(users).Error)
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(withdrawals).Error)
	return db
}

func seedDeliveredOrder(t *testing.T, db *gorm.DB, storeID uuid.UUID, courierID *uuid.UUID, storePayout enums.PayoutStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           uuid.New(),
		StoreID:           storeID,
		CourierID:         courierID,
		Status:            enums.OrderStatusDelivered,
		PaymentStatus:     enums.PaymentStatusPaid,
		StorePayoutStatus: storePayout,
		SubtotalCents:     1000,
		TotalCents:        1000,
		CommissionPercent: 10,
		DeliveryFeeCents:  200000,
		DeliveryAddress:   "Calle 1 #2-03",
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func seedWithdrawal(t *testing.T, db *gorm.DB, requesterID uuid.UUID, amount int64, status enums.WithdrawalStatus) *models.WithdrawalRequest {
	t.Helper()
	request := &models.WithdrawalRequest{
		ID:                 uuid.New(),
		RequesterID:        requesterID,
		Role:               enums.PayoutRoleStore,
		AmountCents:        amount,
		DestinationAccount: "Bancolombia ahorros 123-456789-00",
		Status:             status,
	}
	require.NoError(t, db.Create(request).Error)
	return request
}

// Store withdrawals carry the store id as requester, which has no row in
// users. The insert must succeed with foreign keys enforced.
func TestRepository_CreateWithdrawalForStoreLedger(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	storeID := uuid.New()
	request := &models.WithdrawalRequest{
		ID:                 uuid.New(),
		RequesterID:        storeID,
		Role:               enums.PayoutRoleStore,
		AmountCents:        500,
		DestinationAccount: "Nequi 3001234567",
		Status:             enums.WithdrawalStatusPending,
	}
	require.NoError(t, repo.CreateWithdrawal(ctx, request))

	stored, err := repo.FindWithdrawalByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, storeID, stored.RequesterID)
	assert.Equal(t, "Nequi 3001234567", stored.DestinationAccount)
}

func TestRepository_ListUnpaidDeliveredFilters(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	storeID := uuid.New()
	unpaid := seedDeliveredOrder(t, db, storeID, nil, enums.PayoutStatusUnpaid)
	seedDeliveredOrder(t, db, storeID, nil, enums.PayoutStatusPaid)
	seedDeliveredOrder(t, db, uuid.New(), nil, enums.PayoutStatusUnpaid)

	rows, err := repo.ListUnpaidDelivered(ctx, enums.PayoutRoleStore, storeID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, unpaid.ID, rows[0].ID)
}

func TestRepository_SumHeldExcludesRejected(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	storeID := uuid.New()
	seedWithdrawal(t, db, storeID, 500, enums.WithdrawalStatusPending)
	seedWithdrawal(t, db, storeID, 300, enums.WithdrawalStatusApproved)
	seedWithdrawal(t, db, storeID, 900, enums.WithdrawalStatusRejected)
	seedWithdrawal(t, db, uuid.New(), 100, enums.WithdrawalStatusPending)

	held, err := repo.SumHeldWithdrawals(ctx, storeID, enums.PayoutRoleStore)
	require.NoError(t, err)
	assert.Equal(t, int64(800), held)
}

func TestRepository_DecideWithdrawalOnlyOnce(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	request := seedWithdrawal(t, db, uuid.New(), 500, enums.WithdrawalStatusPending)

	rows, err := repo.DecideWithdrawal(ctx, request.ID, map[string]any{
		"status": enums.WithdrawalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.DecideWithdrawal(ctx, request.ID, map[string]any{
		"status": enums.WithdrawalStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows, "second decision must lose")

	stored, err := repo.FindWithdrawalByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, stored.Status)
}

func TestRepository_MarkOrderPaidPerSide(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	courierID := uuid.New()
	order := seedDeliveredOrder(t, db, uuid.New(), &courierID, enums.PayoutStatusUnpaid)

	rows, err := repo.MarkOrderPaid(ctx, order.ID, enums.PayoutRoleStore)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// The store side is settled; the courier side is untouched.
	rows, err = repo.MarkOrderPaid(ctx, order.ID, enums.PayoutRoleStore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = repo.MarkOrderPaid(ctx, order.ID, enums.PayoutRoleDelivery)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestRepository_MarkOrderPaidRequiresDelivered(t *testing.T) {
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         uuid.New(),
		StoreID:         uuid.New(),
		Status:          enums.OrderStatusInDelivery,
		DeliveryAddress: "Cra 7 #12-34",
	}
	require.NoError(t, db.Create(order).Error)

	rows, err := repo.MarkOrderPaid(ctx, order.ID, enums.PayoutRoleStore)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}
