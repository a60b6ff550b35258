package settlement

import (
	"context"
	"time"

	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/internal/orders"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
	"github.com/camilomorales/domicilios-backend/pkg/metrics"
	"github.com/camilomorales/domicilios-backend/pkg/payments"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventTypeTransactionUpdated is the gateway event carrying payment results.
const EventTypeTransactionUpdated = "transaction.updated"

// Outcome tags reported back to the gateway.
const (
	OutcomeSuccess     = "success"
	OutcomeIgnored     = "ignored_not_payment"
	OutcomeNotApproved = "received_but_not_approved"
)

// outcomeDuplicate labels absorbed replays in metrics. The gateway is told
// success so it stops redelivering.
const outcomeDuplicate = "duplicate"

// Event is the webhook envelope the gateway delivers.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"event"`
	SentAt string    `json:"sent_at"`
	Data   EventData `json:"data"`
}

// EventData wraps the transaction snapshot inside the event. The snapshot is
// advisory only; settlement always re-fetches the transaction from the
// gateway before moving money state.
type EventData struct {
	Transaction EventTransaction `json:"transaction"`
}

// EventTransaction identifies the transaction the event refers to.
type EventTransaction struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

type transactionFetcher interface {
	GetTransaction(ctx context.Context, transactionID string) (*payments.Transaction, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput)
}

// Service settles orders from payment gateway events.
type Service interface {
	HandleEvent(ctx context.Context, event Event) (string, error)
}

type service struct {
	repo    orders.Repository
	tx      txRunner
	gateway transactionFetcher
	stores  storeReader
	notify  dispatcher
	metrics *metrics.SettlementMetrics
	logger  *logger.Logger
}

// NewService wires the settlement handler dependencies.
func NewService(
	repo orders.Repository,
	tx txRunner,
	gateway transactionFetcher,
	stores storeReader,
	notify dispatcher,
	settlementMetrics *metrics.SettlementMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if stores == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "store reader required")
	}
	if notify == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification dispatcher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		gateway: gateway,
		stores:  stores,
		notify:  notify,
		metrics: settlementMetrics,
		logger:  logg,
	}, nil
}

// HandleEvent confirms payment for the referenced order. The returned outcome
// tag is always safe to acknowledge with a 200; an error means the event
// should be redelivered.
func (s *service) HandleEvent(ctx context.Context, event Event) (string, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDuration(event.Type, time.Since(start))
	}()

	ctx = s.logger.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if event.Type != EventTypeTransactionUpdated {
		s.logger.Info(ctx, "event ignored: not a payment event")
		s.metrics.IncOutcome(OutcomeIgnored)
		return OutcomeIgnored, nil
	}
	if event.Data.Transaction.ID == "" {
		s.metrics.IncFailure(event.Type)
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event is missing the transaction id")
	}

	// The event body is unauthenticated data. The gateway record is the
	// source of truth for status and amount.
	transaction, err := s.gateway.GetTransaction(ctx, event.Data.Transaction.ID)
	if err != nil {
		if err == payments.ErrTransactionNotFound {
			s.logger.Warn(ctx, "gateway does not know the transaction")
			s.metrics.IncOutcome(OutcomeNotApproved)
			return OutcomeNotApproved, nil
		}
		s.metrics.IncFailure(event.Type)
		return "", err
	}
	if !transaction.IsApproved() {
		s.logger.Info(ctx, "transaction not approved, nothing to settle")
		s.metrics.IncOutcome(OutcomeNotApproved)
		return OutcomeNotApproved, nil
	}

	orderID, err := uuid.Parse(transaction.Reference)
	if err != nil {
		s.metrics.IncFailure(event.Type)
		return "", pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is not an order id")
	}

	var order *models.Order
	outcome := OutcomeSuccess
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				// Erroring here would make the gateway retry forever for an
				// order this system will never know. Acknowledge instead.
				s.logger.Warn(ctx, "approved transaction references an unknown order")
				outcome = OutcomeNotApproved
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order = loaded

		// A redelivered or concurrent event finds the order already paid.
		if order.PaymentStatus == enums.PaymentStatusPaid {
			outcome = outcomeDuplicate
			return nil
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
		}

		now := time.Now().UTC()
		rows, err := repo.UpdateStatusFrom(ctx, order.ID, enums.OrderStatusPendingPayment, map[string]any{
			"status":           enums.OrderStatusInPreparation,
			"payment_status":   enums.PaymentStatusPaid,
			"paid_at":          now,
			"transaction_id":   transaction.ID,
			"ready_for_pickup": false,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle order")
		}
		if rows == 0 {
			outcome = outcomeDuplicate
			return nil
		}

		order.Status = enums.OrderStatusInPreparation
		order.PaymentStatus = enums.PaymentStatusPaid
		order.TransactionID = &transaction.ID
		order.ReadyForPickup = false
		order.PaidAt = &now
		return nil
	})
	if err != nil {
		s.metrics.IncFailure(event.Type)
		return "", err
	}

	if outcome == OutcomeSuccess {
		s.notifySettled(ctx, order)
	}
	s.metrics.IncOutcome(outcome)
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"outcome":  outcome,
	}), "payment event settled")
	if outcome == outcomeDuplicate {
		// The order is already settled; the gateway only needs the ack.
		return OutcomeSuccess, nil
	}
	return outcome, nil
}

func (s *service) notifySettled(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}

	s.notify.Dispatch(ctx, notifications.DispatchInput{
		UserID:  order.BuyerID,
		Type:    enums.NotificationTypePaymentConfirmed,
		Title:   "Pago confirmado",
		Message: "Tu pago fue confirmado, la tienda está preparando tu pedido",
		OrderID: &order.ID,
	})

	store, err := s.stores.FindByID(ctx, order.StoreID)
	if err != nil {
		s.logger.Error(ctx, "load store for settlement notification", err)
		return
	}
	s.notify.Dispatch(ctx, notifications.DispatchInput{
		UserID:  store.OwnerID,
		Type:    enums.NotificationTypePaymentConfirmed,
		Title:   "Pedido pagado",
		Message: "El pedido fue pagado, puedes empezar a prepararlo",
		OrderID: &order.ID,
	})
}
