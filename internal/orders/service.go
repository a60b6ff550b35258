package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/pkg/config"
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	pkgerrors "github.com/camilomorales/domicilios-backend/pkg/errors"
	"github.com/camilomorales/domicilios-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error)
}

type productReader interface {
	FindActiveByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, input notifications.DispatchInput)
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	MarkReady(ctx context.Context, actor Actor, orderID uuid.UUID) error
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListForActor(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListAvailable(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	stores   storeReader
	products productReader
	notify   dispatcher
	platform config.PlatformConfig
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, stores storeReader, products productReader, notify dispatcher, platform config.PlatformConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store reader required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		stores:   stores,
		products: products,
		notify:   notify,
		platform: platform,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if input.DeliveryAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	if input.CustomerName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if input.CustomerPhone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer phone required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative")
		}
	}

	store, err := s.stores.FindByID(ctx, input.StoreID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if !store.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}

	items, subtotal, verified, err := s.assembleItems(ctx, store.ID, input.Items)
	if err != nil {
		return nil, err
	}
	if subtotal <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order subtotal must be positive")
	}
	if s.platform.MaxSubtotalCents > 0 && subtotal > s.platform.MaxSubtotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order subtotal exceeds the allowed maximum")
	}

	serviceFee := serviceFeeCents(subtotal, s.platform.ServiceFeePercent)
	deliveryFee := s.platform.DeliveryFeeCents
	order := &models.Order{
		BuyerID:           input.BuyerID,
		StoreID:           store.ID,
		Status:            enums.OrderStatusPendingConfirmation,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		SubtotalCents:     subtotal,
		ServiceFeeCents:   serviceFee,
		DeliveryFeeCents:  deliveryFee,
		TotalCents:        subtotal + serviceFee + deliveryFee,
		CommissionPercent: store.CommissionPercent,
		PriceVerified:     verified,
		DeliveryAddress:   input.DeliveryAddress,
		CustomerName:      input.CustomerName,
		CustomerPhone:     input.CustomerPhone,
		CustomerCoords:    input.CustomerCoords,
		Notes:             input.Notes,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items

	s.notify.Dispatch(ctx, notifications.DispatchInput{
		UserID:  store.OwnerID,
		Type:    enums.NotificationTypeOrderPlaced,
		Title:   "Nuevo pedido",
		Message: "Tienes un nuevo pedido por confirmar",
		OrderID: &order.ID,
	})

	return order, nil
}

// assembleItems snapshots the requested lines, preferring catalog prices.
// Lines whose product is missing from the catalog keep the client price and
// are flagged unverified.
func (s *service) assembleItems(ctx context.Context, storeID uuid.UUID, inputs []CreateOrderItemInput) ([]models.OrderItem, int64, bool, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, item := range inputs {
		if item.ProductID != nil && *item.ProductID != uuid.Nil {
			ids = append(ids, *item.ProductID)
		}
	}

	catalog := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		found, err := s.products.FindActiveByIDs(ctx, storeID, ids)
		if err != nil {
			return nil, 0, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog products")
		}
		catalog = found
	}

	items := make([]models.OrderItem, 0, len(inputs))
	var subtotal int64
	verified := true
	for _, input := range inputs {
		item := models.OrderItem{
			ProductID:      input.ProductID,
			Name:           input.Name,
			UnitPriceCents: input.UnitPriceCents,
			Qty:            input.Qty,
			PriceVerified:  false,
		}
		if input.ProductID != nil {
			if product, ok := catalog[*input.ProductID]; ok {
				item.UnitPriceCents = product.PriceCents
				item.Name = product.Name
				item.PriceVerified = true
			}
		}
		if !item.PriceVerified {
			verified = false
			if item.Name == "" {
				return nil, 0, false, pkgerrors.New(pkgerrors.CodeValidation, "item name required when product is unknown")
			}
		}
		item.TotalCents = item.UnitPriceCents * int64(item.Qty)
		subtotal += item.TotalCents
		items = append(items, item)
	}
	return items, subtotal, verified, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Target))
	}

	if input.Target == enums.OrderStatusInDelivery {
		return s.claim(ctx, input)
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		order = loaded

		role, ok := allowedRole(order.Status, input.Target)
		if !ok {
			if reservedForSettlement(order.Status, input.Target) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment confirmation is handled by the payment flow")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target))
		}
		if input.Actor.Role != role {
			return pkgerrors.New(pkgerrors.CodeForbidden, "actor cannot perform this transition")
		}

		switch role {
		case enums.ActorRoleStore:
			store, err := s.storeOwner(ctx, order.StoreID)
			if err != nil {
				return err
			}
			if store.OwnerID != input.Actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to store")
			}
		case enums.ActorRoleBuyer:
			if order.BuyerID != input.Actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
			}
		case enums.ActorRoleCourier:
			if order.CourierID == nil || *order.CourierID != input.Actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to courier")
			}
		}

		updates := map[string]any{"status": input.Target}
		if input.Target == enums.OrderStatusDelivered {
			updates["delivered_at"] = time.Now().UTC()
		}

		rows, err := repo.UpdateStatusFrom(ctx, order.ID, order.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state, retry")
		}
		order.Status = input.Target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, order, input.Target)
	return order, nil
}

// claim is the courier race: a conditional update that only wins while the
// order is unclaimed.
func (s *service) claim(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.Actor.Role != enums.ActorRoleCourier {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only couriers can claim orders")
	}

	rows, err := s.repo.Claim(ctx, input.OrderID, input.Actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order")
	}

	order, findErr := s.repo.FindByID(ctx, input.OrderID)
	if findErr != nil {
		if findErr == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load order")
	}

	if rows == 0 {
		// Repeated claim by the same courier is absorbed as success.
		if order.CourierID != nil && *order.CourierID == input.Actor.UserID &&
			order.Status == enums.OrderStatusInDelivery {
			return order, nil
		}
		if order.Status != enums.OrderStatusInPreparation {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, enums.OrderStatusInDelivery))
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pedido ya no disponible")
	}

	s.notifyTransition(ctx, order, enums.OrderStatusInDelivery)
	return order, nil
}

func (s *service) MarkReady(ctx context.Context, actor Actor, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actor.Role != enums.ActorRoleStore {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only stores can flag pickup readiness")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	store, err := s.storeOwner(ctx, order.StoreID)
	if err != nil {
		return err
	}
	if store.OwnerID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to store")
	}
	if order.Status != enums.OrderStatusInPreparation {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not in preparation")
	}

	if err := s.repo.Update(ctx, order.ID, map[string]any{"ready_for_pickup": true}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pickup flag")
	}
	return nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByIDWithItems(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if err := s.authorizeRead(ctx, actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) authorizeRead(ctx context.Context, actor Actor, order *models.Order) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID == actor.UserID {
			return nil
		}
	case enums.ActorRoleStore:
		store, err := s.storeOwner(ctx, order.StoreID)
		if err != nil {
			return err
		}
		if store.OwnerID == actor.UserID {
			return nil
		}
	case enums.ActorRoleCourier:
		if order.CourierID != nil && *order.CourierID == actor.UserID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order is not visible to actor")
}

func (s *service) ListForActor(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		rows []models.Order
		next *pagination.Cursor
		err  error
	)
	switch actor.Role {
	case enums.ActorRoleBuyer:
		rows, next, err = s.repo.ListByBuyer(ctx, actor.UserID, params, filters)
	case enums.ActorRoleStore:
		store, serr := s.storeByOwner(ctx, actor.UserID)
		if serr != nil {
			return nil, serr
		}
		rows, next, err = s.repo.ListByStore(ctx, store.ID, params, filters)
	case enums.ActorRoleCourier:
		rows, next, err = s.repo.ListByCourier(ctx, actor.UserID, params, filters)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return buildList(rows, next), nil
}

func (s *service) ListAvailable(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error) {
	if actor.Role != enums.ActorRoleCourier {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only couriers can browse available orders")
	}
	rows, next, err := s.repo.ListAvailable(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available orders")
	}
	return buildList(rows, next), nil
}

func (s *service) storeOwner(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}

func (s *service) storeByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	store, err := s.stores.FindByOwner(ctx, ownerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor has no store")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store by owner")
	}
	return store, nil
}

func (s *service) notifyTransition(ctx context.Context, order *models.Order, target enums.OrderStatus) {
	if order == nil {
		return
	}
	switch target {
	case enums.OrderStatusPendingPayment:
		s.notify.Dispatch(ctx, notifications.DispatchInput{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypeOrderConfirmed,
			Title:   "Pedido confirmado",
			Message: "Tu pedido fue confirmado, puedes continuar con el pago",
			OrderID: &order.ID,
		})
	case enums.OrderStatusRejected:
		s.notify.Dispatch(ctx, notifications.DispatchInput{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypeOrderRejected,
			Title:   "Pedido rechazado",
			Message: "La tienda no pudo tomar tu pedido",
			OrderID: &order.ID,
		})
	case enums.OrderStatusInDelivery:
		s.notify.Dispatch(ctx, notifications.DispatchInput{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypeOrderClaimed,
			Title:   "Pedido en camino",
			Message: "Un repartidor tomó tu pedido",
			OrderID: &order.ID,
		})
	case enums.OrderStatusDelivered:
		s.notify.Dispatch(ctx, notifications.DispatchInput{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypeOrderDelivered,
			Title:   "Pedido entregado",
			Message: "Tu pedido fue entregado",
			OrderID: &order.ID,
		})
	}
}

// serviceFeeCents computes the platform fee, rounding half up to whole cents.
func serviceFeeCents(subtotal int64, percent int) int64 {
	if subtotal <= 0 || percent <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return fee.IntPart()
}

func buildList(rows []models.Order, next *pagination.Cursor) *OrderList {
	summaries := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, OrderSummary{
			ID:             row.ID,
			StoreID:        row.StoreID,
			Status:         row.Status,
			PaymentStatus:  row.PaymentStatus,
			TotalCents:     row.TotalCents,
			TotalItems:     len(row.Items),
			ReadyForPickup: row.ReadyForPickup,
			CreatedAt:      row.CreatedAt,
		})
	}
	list := &OrderList{Orders: summaries}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list
}
