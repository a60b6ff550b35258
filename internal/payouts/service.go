package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Actor identifies the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// WithdrawalInput carries a cash-out request: how much and where the money
// should go.
type WithdrawalInput struct {
	AmountCents        int64
	DestinationAccount string
}

// DecisionInput carries an admin ruling on a withdrawal request.
type DecisionInput struct {
	WithdrawalID uuid.UUID
	AdminID      uuid.UUID
	Approve      bool
	Reason       *string
}

// SettleInput asks to mark delivered orders as paid out for one side of the
// marketplace.
type SettleInput struct {
	Role      enums.PayoutRole
	SubjectID uuid.UUID
	OrderIDs  []uuid.UUID
}

// SettleResult reports which orders were settled and which were skipped
// because they were not payable.
type SettleResult struct {
	Settled []uuid.UUID `json:"settled"`
	Skipped []uuid.UUID `json:"skipped"`
}

// WithdrawalList is a page of withdrawal requests.
type WithdrawalList struct {
	Withdrawals []models.WithdrawalRequest `json:"withdrawals"`
	NextCursor  string                     `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput)
}

// Service defines the payout ledger operations.
type Service interface {
	GetBalance(ctx context.Context, actor Actor) (*Balance, error)
	RequestWithdrawal(ctx context.Context, actor Actor, input WithdrawalInput) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, actor Actor, params pagination.Params) (*WithdrawalList, error)
	ListPending(ctx context.Context, params pagination.Params) (*WithdrawalList, error)
	Decide(ctx context.Context, input DecisionInput) (*models.WithdrawalRequest, error)
	SettleOrders(ctx context.Context, input SettleInput) (*SettleResult, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	stores storeReader
	notify dispatcher
}

// NewService builds the payouts service with the required dependencies.
func NewService(repo Repository, tx txRunner, stores storeReader, notify dispatcher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store reader required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{repo: repo, tx: tx, stores: stores, notify: notify}, nil
}

// resolveSubject maps the authenticated user to their ledger identity. Store
// owners operate the ledger of their store; couriers operate their own.
func (s *service) resolveSubject(ctx context.Context, actor Actor) (enums.PayoutRole, uuid.UUID, error) {
	if actor.UserID == uuid.Nil {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	switch actor.Role {
	case enums.ActorRoleStore:
		store, err := s.stores.FindByOwner(ctx, actor.UserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor has no store")
			}
			return "", uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store by owner")
		}
		return enums.PayoutRoleStore, store.ID, nil
	case enums.ActorRoleCourier:
		return enums.PayoutRoleDelivery, actor.UserID, nil
	}
	return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "role has no payout ledger")
}

func (s *service) balance(ctx context.Context, repo Repository, role enums.PayoutRole, subjectID uuid.UUID) (*Balance, error) {
	unpaid, err := repo.ListUnpaidDelivered(ctx, role, subjectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid orders")
	}
	held, err := repo.SumHeldWithdrawals(ctx, subjectID, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum held withdrawals")
	}
	result := buildBalance(role, unpaid, held)
	return &result, nil
}

func (s *service) GetBalance(ctx context.Context, actor Actor) (*Balance, error) {
	role, subjectID, err := s.resolveSubject(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.balance(ctx, s.repo, role, subjectID)
}

// RequestWithdrawal holds part of the available balance pending admin review.
// The balance check and the insert run in one transaction so concurrent
// requests cannot overdraw.
func (s *service) RequestWithdrawal(ctx context.Context, actor Actor, input WithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	if input.DestinationAccount == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination account required")
	}

	role, subjectID, err := s.resolveSubject(ctx, actor)
	if err != nil {
		return nil, err
	}

	request := &models.WithdrawalRequest{
		RequesterID:        subjectID,
		Role:               role,
		AmountCents:        input.AmountCents,
		DestinationAccount: input.DestinationAccount,
		Status:             enums.WithdrawalStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.balance(ctx, repo, role, subjectID)
		if err != nil {
			return err
		}
		if input.AmountCents > current.AvailableCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "requested amount exceeds available balance").
				WithDetails(map[string]any{
					"available_cents": current.AvailableCents,
					"requested_cents": input.AmountCents,
				})
		}
		if err := repo.CreateWithdrawal(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) ListWithdrawals(ctx context.Context, actor Actor, params pagination.Params) (*WithdrawalList, error) {
	_, subjectID, err := s.resolveSubject(ctx, actor)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListWithdrawalsByRequester(ctx, subjectID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return buildWithdrawalList(rows, next), nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*WithdrawalList, error) {
	rows, next, err := s.repo.ListPendingWithdrawals(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending withdrawals")
	}
	return buildWithdrawalList(rows, next), nil
}

func (s *service) Decide(ctx context.Context, input DecisionInput) (*models.WithdrawalRequest, error) {
	if input.WithdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Approve && (input.Reason == nil || *input.Reason == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection requires a reason")
	}

	request, err := s.repo.FindWithdrawalByID(ctx, input.WithdrawalID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if request.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already decided")
	}

	status := enums.WithdrawalStatusApproved
	if !input.Approve {
		status = enums.WithdrawalStatusRejected
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       status,
		"processed_by": input.AdminID,
		"processed_at": now,
	}
	if input.Reason != nil {
		updates["reason"] = *input.Reason
	}

	rows, err := s.repo.DecideWithdrawal(ctx, request.ID, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide withdrawal")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already decided")
	}

	request.Status = status
	request.ProcessedBy = &input.AdminID
	request.ProcessedAt = &now
	request.Reason = input.Reason

	s.notifyDecision(ctx, request)
	return request, nil
}

// SettleOrders marks delivered orders as paid out for one store or courier.
// Orders that are not payable are skipped; database failures are aggregated
// and returned after the loop finishes.
func (s *service) SettleOrders(ctx context.Context, input SettleInput) (*SettleResult, error) {
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout role")
	}
	if input.SubjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
	}
	if len(input.OrderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	unpaid, err := s.repo.ListUnpaidDelivered(ctx, input.Role, input.SubjectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid orders")
	}
	payable := make(map[uuid.UUID]bool, len(unpaid))
	for _, order := range unpaid {
		payable[order.ID] = true
	}

	result := &SettleResult{}
	var errs error
	for _, orderID := range input.OrderIDs {
		if !payable[orderID] {
			result.Skipped = append(result.Skipped, orderID)
			continue
		}
		rows, err := s.repo.MarkOrderPaid(ctx, orderID, input.Role)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle order %s: %w", orderID, err))
			continue
		}
		if rows == 0 {
			result.Skipped = append(result.Skipped, orderID)
			continue
		}
		result.Settled = append(result.Settled, orderID)
	}
	if errs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "settle orders")
	}
	return result, nil
}

func (s *service) notifyDecision(ctx context.Context, request *models.WithdrawalRequest) {
	userID := request.RequesterID
	if request.Role == enums.PayoutRoleStore {
		store, err := s.stores.FindByID(ctx, request.RequesterID)
		if err != nil {
			return
		}
		userID = store.OwnerID
	}

	title := "Retiro aprobado"
	message := "Tu solicitud de retiro fue aprobada"
	if request.Status == enums.WithdrawalStatusRejected {
		title = "Retiro rechazado"
		message = "Tu solicitud de retiro fue rechazada"
		if request.Reason != nil && *request.Reason != "" {
			message = fmt.Sprintf("Tu solicitud de retiro fue rechazada: %s", *request.Reason)
		}
	}

	s.notify.Dispatch(ctx, notifications.DispatchInput{
		UserID:  userID,
		Type:    enums.NotificationTypeWithdrawalDecided,
		Title:   title,
		Message: message,
	})
}

func buildWithdrawalList(rows []models.WithdrawalRequest, next *pagination.Cursor) *WithdrawalList {
	list := &WithdrawalList{Withdrawals: rows}
	if list.Withdrawals == nil {
		list.Withdrawals = []models.WithdrawalRequest{}
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list
}
