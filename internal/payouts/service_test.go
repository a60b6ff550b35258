package payouts

import (
	"context"
	"strings"
	"testing"

	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupPayoutsService(t *testing.T, repo *stubPayoutsRepo, stores *stubStoreReader, notify *stubDispatcher) Service {
	t.Helper()
	svc, err := NewService(repo, &stubTxRunner{}, stores, notify)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func TestService_GetBalanceResolvesStoreLedger(t *testing.T) {
	ownerID := uuid.New()
	store := &models.Store{ID: uuid.New(), OwnerID: ownerID}
	repo := &stubPayoutsRepo{
		unpaid: []models.Order{{SubtotalCents: 1000, CommissionPercent: 10}},
		held:   500,
	}
	svc := setupPayoutsService(t, repo, &stubStoreReader{store: store}, &stubDispatcher{})

	balance, err := svc.GetBalance(context.Background(), Actor{UserID: ownerID, Role: enums.ActorRoleStore})
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.EarnedCents != 900 {
		t.Fatalf("earned = %d, want 900", balance.EarnedCents)
	}
	if balance.AvailableCents != 400 {
		t.Fatalf("available = %d, want 400", balance.AvailableCents)
	}
	if repo.ledgerSubject != store.ID {
		t.Fatalf("ledger subject = %s, want store id %s", repo.ledgerSubject, store.ID)
	}
}

func TestService_GetBalanceForbiddenForBuyer(t *testing.T) {
	svc := setupPayoutsService(t, &stubPayoutsRepo{}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.GetBalance(context.Background(), Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeForbidden {
		t.Fatalf("error code = %s, want FORBIDDEN", code)
	}
}

func TestService_RequestWithdrawalRejectsOverdraw(t *testing.T) {
	courierID := uuid.New()
	repo := &stubPayoutsRepo{
		unpaid: []models.Order{{DeliveryFeeCents: 900}},
		held:   500,
	}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.RequestWithdrawal(context.Background(), Actor{UserID: courierID, Role: enums.ActorRoleCourier}, WithdrawalInput{
		AmountCents:        500,
		DestinationAccount: "Nequi 3001234567",
	})
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodeInsufficientFunds {
		t.Fatalf("error code = %s, want INSUFFICIENT_FUNDS", typed.Code())
	}
	if len(repo.created) != 0 {
		t.Fatalf("no withdrawal should be created on overdraw")
	}
}

func TestService_RequestWithdrawalHoldsAvailableBalance(t *testing.T) {
	courierID := uuid.New()
	repo := &stubPayoutsRepo{
		unpaid: []models.Order{{DeliveryFeeCents: 900}},
		held:   500,
	}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, &stubDispatcher{})

	request, err := svc.RequestWithdrawal(context.Background(), Actor{UserID: courierID, Role: enums.ActorRoleCourier}, WithdrawalInput{
		AmountCents:        400,
		DestinationAccount: "Bancolombia ahorros 123-456789-00",
	})
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if request.Status != enums.WithdrawalStatusPending {
		t.Fatalf("status = %s, want pending", request.Status)
	}
	if request.RequesterID != courierID {
		t.Fatalf("requester = %s, want courier id", request.RequesterID)
	}
	if request.Role != enums.PayoutRoleDelivery {
		t.Fatalf("role = %s, want delivery", request.Role)
	}
	if request.DestinationAccount != "Bancolombia ahorros 123-456789-00" {
		t.Fatalf("destination = %q", request.DestinationAccount)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one created withdrawal, got %d", len(repo.created))
	}
}

func TestService_RequestWithdrawalRequiresPositiveAmount(t *testing.T) {
	svc := setupPayoutsService(t, &stubPayoutsRepo{}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.RequestWithdrawal(context.Background(), Actor{UserID: uuid.New(), Role: enums.ActorRoleCourier}, WithdrawalInput{
		AmountCents:        0,
		DestinationAccount: "Nequi 3001234567",
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
}

func TestService_RequestWithdrawalRequiresDestination(t *testing.T) {
	repo := &stubPayoutsRepo{}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.RequestWithdrawal(context.Background(), Actor{UserID: uuid.New(), Role: enums.ActorRoleCourier}, WithdrawalInput{
		AmountCents: 400,
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
	if len(repo.created) != 0 {
		t.Fatalf("no withdrawal should be created without a destination")
	}
}

func TestService_DecideRejectionRequiresReason(t *testing.T) {
	svc := setupPayoutsService(t, &stubPayoutsRepo{}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.Decide(context.Background(), DecisionInput{
		WithdrawalID: uuid.New(),
		AdminID:      uuid.New(),
		Approve:      false,
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
}

func TestService_DecideAlreadyDecided(t *testing.T) {
	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		Role:        enums.PayoutRoleDelivery,
		AmountCents: 400,
		Status:      enums.WithdrawalStatusApproved,
	}
	svc := setupPayoutsService(t, &stubPayoutsRepo{withdrawal: request}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.Decide(context.Background(), DecisionInput{
		WithdrawalID: request.ID,
		AdminID:      uuid.New(),
		Approve:      true,
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeStateConflict {
		t.Fatalf("error code = %s, want STATE_CONFLICT", code)
	}
}

func TestService_DecideConcurrentLoserGetsConflict(t *testing.T) {
	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		Role:        enums.PayoutRoleDelivery,
		AmountCents: 400,
		Status:      enums.WithdrawalStatusPending,
	}
	repo := &stubPayoutsRepo{withdrawal: request, decideRows: 0}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.Decide(context.Background(), DecisionInput{
		WithdrawalID: request.ID,
		AdminID:      uuid.New(),
		Approve:      true,
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeStateConflict {
		t.Fatalf("error code = %s, want STATE_CONFLICT", code)
	}
}

func TestService_DecideApprovesAndNotifiesStoreOwner(t *testing.T) {
	ownerID := uuid.New()
	store := &models.Store{ID: uuid.New(), OwnerID: ownerID}
	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		RequesterID: store.ID,
		Role:        enums.PayoutRoleStore,
		AmountCents: 400,
		Status:      enums.WithdrawalStatusPending,
	}
	adminID := uuid.New()
	repo := &stubPayoutsRepo{withdrawal: request, decideRows: 1}
	notify := &stubDispatcher{}
	svc := setupPayoutsService(t, repo, &stubStoreReader{store: store}, notify)

	decided, err := svc.Decide(context.Background(), DecisionInput{
		WithdrawalID: request.ID,
		AdminID:      adminID,
		Approve:      true,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != enums.WithdrawalStatusApproved {
		t.Fatalf("status = %s, want approved", decided.Status)
	}
	if decided.ProcessedBy == nil || *decided.ProcessedBy != adminID {
		t.Fatalf("expected processed_by to record the admin")
	}
	if decided.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
	if len(notify.dispatched) != 1 {
		t.Fatalf("expected one notification, got %d", len(notify.dispatched))
	}
	if notify.dispatched[0].UserID != ownerID {
		t.Fatalf("store withdrawal decision must reach the owner")
	}
	if notify.dispatched[0].Type != enums.NotificationTypeWithdrawalDecided {
		t.Fatalf("notification type = %s", notify.dispatched[0].Type)
	}
}

func TestService_DecideRejectionCarriesReason(t *testing.T) {
	courierID := uuid.New()
	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		RequesterID: courierID,
		Role:        enums.PayoutRoleDelivery,
		AmountCents: 400,
		Status:      enums.WithdrawalStatusPending,
	}
	repo := &stubPayoutsRepo{withdrawal: request, decideRows: 1}
	notify := &stubDispatcher{}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, notify)

	reason := "datos bancarios incompletos"
	decided, err := svc.Decide(context.Background(), DecisionInput{
		WithdrawalID: request.ID,
		AdminID:      uuid.New(),
		Approve:      false,
		Reason:       &reason,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != enums.WithdrawalStatusRejected {
		t.Fatalf("status = %s, want rejected", decided.Status)
	}
	if len(notify.dispatched) != 1 || notify.dispatched[0].UserID != courierID {
		t.Fatalf("expected courier to be notified")
	}
	if !strings.Contains(notify.dispatched[0].Message, reason) {
		t.Fatalf("rejection message should include the reason, got %q", notify.dispatched[0].Message)
	}
}

func TestService_SettleOrdersSkipsUnpayable(t *testing.T) {
	storeID := uuid.New()
	payable := uuid.New()
	foreign := uuid.New()
	repo := &stubPayoutsRepo{
		unpaid:   []models.Order{{ID: payable, StoreID: storeID}},
		markRows: 1,
	}
	svc := setupPayoutsService(t, repo, &stubStoreReader{}, &stubDispatcher{})

	result, err := svc.SettleOrders(context.Background(), SettleInput{
		Role:      enums.PayoutRoleStore,
		SubjectID: storeID,
		OrderIDs:  []uuid.UUID{payable, foreign},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(result.Settled) != 1 || result.Settled[0] != payable {
		t.Fatalf("settled = %v, want [%s]", result.Settled, payable)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != foreign {
		t.Fatalf("skipped = %v, want [%s]", result.Skipped, foreign)
	}
	if len(repo.marked) != 1 || repo.marked[0] != payable {
		t.Fatalf("only the payable order should be marked")
	}
}

func TestService_SettleOrdersValidatesInput(t *testing.T) {
	svc := setupPayoutsService(t, &stubPayoutsRepo{}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.SettleOrders(context.Background(), SettleInput{
		Role:      enums.PayoutRoleStore,
		SubjectID: uuid.New(),
	})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
}

type stubPayoutsRepo struct {
	unpaid        []models.Order
	held          int64
	withdrawal    *models.WithdrawalRequest
	decideRows    int64
	markRows      int64
	created       []*models.WithdrawalRequest
	marked        []uuid.UUID
	ledgerSubject uuid.UUID
}

func (s *stubPayoutsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPayoutsRepo) ListUnpaidDelivered(ctx context.Context, role enums.PayoutRole, subjectID uuid.UUID) ([]models.Order, error) {
	s.ledgerSubject = subjectID
	return s.unpaid, nil
}

func (s *stubPayoutsRepo) SumHeldWithdrawals(ctx context.Context, requesterID uuid.UUID, role enums.PayoutRole) (int64, error) {
	return s.held, nil
}

func (s *stubPayoutsRepo) CreateWithdrawal(ctx context.Context, request *models.WithdrawalRequest) error {
	request.ID = uuid.New()
	s.created = append(s.created, request)
	return nil
}

func (s *stubPayoutsRepo) FindWithdrawalByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	if s.withdrawal == nil || s.withdrawal.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.withdrawal
	return &copied, nil
}

func (s *stubPayoutsRepo) ListWithdrawalsByRequester(ctx context.Context, requesterID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubPayoutsRepo) ListPendingWithdrawals(ctx context.Context, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubPayoutsRepo) DecideWithdrawal(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	return s.decideRows, nil
}

func (s *stubPayoutsRepo) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, role enums.PayoutRole) (int64, error) {
	s.marked = append(s.marked, orderID)
	return s.markRows, nil
}

type stubStoreReader struct {
	store *models.Store
}

func (s *stubStoreReader) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	if s.store == nil || s.store.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.store, nil
}

func (s *stubStoreReader) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	if s.store == nil || s.store.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.store, nil
}

type stubDispatcher struct {
	dispatched []notifications.DispatchInput
}

func (s *stubDispatcher) Dispatch(ctx context.Context, input notifications.DispatchInput) {
	s.dispatched = append(s.dispatched, input)
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
