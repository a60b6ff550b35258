package settlement

import (
	"context"
	"io"
	"testing"

	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/internal/orders"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
	"github.com/camilomorales/domicilios-backend/pkg/metrics"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/camilomorales/domicilios-backend/pkg/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupSettlementService(t *testing.T, repo *stubOrdersRepo, gateway *stubGateway, stores *stubStoreReader, notify *stubDispatcher) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, &stubTxRunner{}, gateway, stores, notify, metrics.NewSettlementMetrics(nil), logg)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func paymentEvent(transactionID string) Event {
	return Event{
		ID:   "evt_1",
		Type: EventTypeTransactionUpdated,
		Data: EventData{Transaction: EventTransaction{ID: transactionID}},
	}
}

func TestService_HandleEventIgnoresOtherEventTypes(t *testing.T) {
	svc := setupSettlementService(t, &stubOrdersRepo{}, &stubGateway{}, &stubStoreReader{}, &stubDispatcher{})

	outcome, err := svc.HandleEvent(context.Background(), Event{ID: "evt_1", Type: "nequi_token.updated"})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeIgnored)
	}
}

func TestService_HandleEventRequiresTransactionID(t *testing.T) {
	svc := setupSettlementService(t, &stubOrdersRepo{}, &stubGateway{}, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.HandleEvent(context.Background(), paymentEvent(""))
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
}

func TestService_HandleEventUnknownTransaction(t *testing.T) {
	gateway := &stubGateway{err: payments.ErrTransactionNotFound}
	svc := setupSettlementService(t, &stubOrdersRepo{}, gateway, &stubStoreReader{}, &stubDispatcher{})

	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeNotApproved {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeNotApproved)
	}
}

func TestService_HandleEventDeclinedTransaction(t *testing.T) {
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:     "tx_1",
		Status: payments.TransactionStatusDeclined,
	}}
	repo := &stubOrdersRepo{}
	svc := setupSettlementService(t, repo, gateway, &stubStoreReader{}, &stubDispatcher{})

	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeNotApproved {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeNotApproved)
	}
	if repo.statusUpdates != 0 {
		t.Fatalf("declined transaction must not touch the order")
	}
}

func TestService_HandleEventSettlesOrder(t *testing.T) {
	ownerID := uuid.New()
	store := &models.Store{ID: uuid.New(), OwnerID: ownerID}
	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		StoreID:       store.ID,
		Status:        enums.OrderStatusPendingPayment,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: order.ID.String(),
	}}
	repo := &stubOrdersRepo{order: order, updateRows: 1}
	notify := &stubDispatcher{}
	svc := setupSettlementService(t, repo, gateway, &stubStoreReader{store: store}, notify)

	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeSuccess)
	}
	if repo.statusUpdates != 1 {
		t.Fatalf("expected one conditional status update, got %d", repo.statusUpdates)
	}
	if len(notify.dispatched) != 2 {
		t.Fatalf("expected buyer and owner notifications, got %d", len(notify.dispatched))
	}
	if notify.dispatched[0].UserID != order.BuyerID {
		t.Fatalf("first notification must reach the buyer")
	}
	if notify.dispatched[1].UserID != ownerID {
		t.Fatalf("second notification must reach the store owner")
	}
	for _, n := range notify.dispatched {
		if n.Type != enums.NotificationTypePaymentConfirmed {
			t.Fatalf("notification type = %s", n.Type)
		}
	}
}

func TestService_HandleEventUnknownOrderIsAcknowledged(t *testing.T) {
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: uuid.NewString(),
	}}
	repo := &stubOrdersRepo{}
	svc := setupSettlementService(t, repo, gateway, &stubStoreReader{}, &stubDispatcher{})

	// An approved transaction pointing at an order this system never created
	// must not error, or the gateway would redeliver the event forever.
	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeNotApproved {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeNotApproved)
	}
	if repo.statusUpdates != 0 {
		t.Fatalf("no update should run for an unknown order")
	}
}

func TestService_HandleEventAlreadyPaidReportsSuccess(t *testing.T) {
	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		StoreID:       uuid.New(),
		Status:        enums.OrderStatusInPreparation,
		PaymentStatus: enums.PaymentStatusPaid,
	}
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: order.ID.String(),
	}}
	repo := &stubOrdersRepo{order: order}
	notify := &stubDispatcher{}
	svc := setupSettlementService(t, repo, gateway, &stubStoreReader{}, notify)

	// The replay is absorbed but the gateway still gets success, so it stops
	// redelivering.
	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeSuccess)
	}
	if repo.statusUpdates != 0 {
		t.Fatalf("paid order must not be updated again")
	}
	if len(notify.dispatched) != 0 {
		t.Fatalf("duplicate must not re-notify")
	}
}

func TestService_HandleEventConcurrentLoserReportsSuccess(t *testing.T) {
	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		StoreID:       uuid.New(),
		Status:        enums.OrderStatusPendingPayment,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: order.ID.String(),
	}}
	repo := &stubOrdersRepo{order: order, updateRows: 0}
	notify := &stubDispatcher{}
	svc := setupSettlementService(t, repo, gateway, &stubStoreReader{}, notify)

	outcome, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeSuccess)
	}
	if len(notify.dispatched) != 0 {
		t.Fatalf("losing delivery must not notify")
	}
}

func TestService_HandleEventBadReference(t *testing.T) {
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: "not-an-order-id",
	}}
	svc := setupSettlementService(t, &stubOrdersRepo{}, gateway, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("error code = %s, want VALIDATION", code)
	}
}

func TestService_HandleEventWrongStateConflicts(t *testing.T) {
	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		StoreID:       uuid.New(),
		Status:        enums.OrderStatusPendingConfirmation,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
	gateway := &stubGateway{transaction: &payments.Transaction{
		ID:        "tx_1",
		Status:    payments.TransactionStatusApproved,
		Reference: order.ID.String(),
	}}
	svc := setupSettlementService(t, &stubOrdersRepo{order: order}, gateway, &stubStoreReader{}, &stubDispatcher{})

	_, err := svc.HandleEvent(context.Background(), paymentEvent("tx_1"))
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeStateConflict {
		t.Fatalf("error code = %s, want STATE_CONFLICT", code)
	}
}

type stubGateway struct {
	transaction *payments.Transaction
	err         error
}

func (s *stubGateway) GetTransaction(ctx context.Context, transactionID string) (*payments.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.transaction, nil
}

type stubOrdersRepo struct {
	order         *models.Order
	updateRows    int64
	statusUpdates int
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubOrdersRepo) CreateItems(ctx context.Context, items []models.OrderItem) error {
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubOrdersRepo) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error) {
	s.statusUpdates++
	return s.updateRows, nil
}

func (s *stubOrdersRepo) Claim(ctx context.Context, orderID, courierID uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubOrdersRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters orders.ListFilters) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubOrdersRepo) ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params, filters orders.ListFilters) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubOrdersRepo) ListByCourier(ctx context.Context, courierID uuid.UUID, params pagination.Params, filters orders.ListFilters) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubOrdersRepo) ListAvailable(ctx context.Context, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
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
