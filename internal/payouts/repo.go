package payouts

import (
	"context"
	"time"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes the ledger reads and withdrawal writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListUnpaidDelivered(ctx context.Context, role enums.PayoutRole, subjectID uuid.UUID) ([]models.Order, error)
	SumHeldWithdrawals(ctx context.Context, requesterID uuid.UUID, role enums.PayoutRole) (int64, error)
	CreateWithdrawal(ctx context.Context, request *models.WithdrawalRequest) error
	FindWithdrawalByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawalsByRequester(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
	ListPendingWithdrawals(ctx context.Context, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
	DecideWithdrawal(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, role enums.PayoutRole) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func payoutColumn(role enums.PayoutRole) string {
	if role == enums.PayoutRoleDelivery {
		return "delivery_payout_status"
	}
	return "store_payout_status"
}

func subjectColumn(role enums.PayoutRole) string {
	if role == enums.PayoutRoleDelivery {
		return "courier_id"
	}
	return "store_id"
}

func (r *repository) ListUnpaidDelivered(ctx context.Context, role enums.PayoutRole, subjectID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where(subjectColumn(role)+" = ?", subjectID).
		Where("status = ?", enums.OrderStatusDelivered).
		Where(payoutColumn(role)+" = ?", enums.PayoutStatusUnpaid).
		Order("delivered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumHeldWithdrawals(ctx context.Context, requesterID uuid.UUID, role enums.PayoutRole) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("requester_id = ? AND role = ? AND status <> ?", requesterID, role, enums.WithdrawalStatusRejected).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) CreateWithdrawal(ctx context.Context, request *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindWithdrawalByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListWithdrawalsByRequester(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("requester_id = ?", requesterID)
	return r.listWithdrawals(query, params)
}

func (r *repository) ListPendingWithdrawals(ctx context.Context, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("status = ?", enums.WithdrawalStatusPending)
	return r.listWithdrawals(query, params)
}

func (r *repository) listWithdrawals(query *gorm.DB, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
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

	var rows []models.WithdrawalRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
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

// DecideWithdrawal flips a pending request to its final state. Zero rows
// means the request was decided concurrently or never existed.
func (r *repository) DecideWithdrawal(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, enums.WithdrawalStatusPending).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// MarkOrderPaid settles one side of a delivered order. The conditional update
// keeps double settlement impossible.
func (r *repository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, role enums.PayoutRole) (int64, error) {
	column := payoutColumn(role)
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND "+column+" = ?", orderID, enums.OrderStatusDelivered, enums.PayoutStatusUnpaid).
		Updates(map[string]any{
			column:       enums.PayoutStatusPaid,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
