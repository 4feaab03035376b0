// internal/core/services/purchase_orders.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// PurchaseOrderService handles purchase order creation and the PENDING to
// RECEIVED/CANCELLED transitions.
type PurchaseOrderService struct {
	orders    ports.PurchaseOrderRepository
	suppliers ports.SupplierRepository
	products  ports.ProductRepository
	ledger    ports.StockLedger
	tx        ports.Transactor
	cache     ports.CacheRepository
	logger    *slog.Logger
	now       func() time.Time
}

// Statically assert that *PurchaseOrderService implements the PurchaseOrderService interface.
var _ ports.PurchaseOrderService = (*PurchaseOrderService)(nil)

// NewPurchaseOrderService creates a new purchase order service
func NewPurchaseOrderService(
	orders ports.PurchaseOrderRepository,
	suppliers ports.SupplierRepository,
	products ports.ProductRepository,
	ledger ports.StockLedger,
	tx ports.Transactor,
	cache ports.CacheRepository,
	logger *slog.Logger,
) *PurchaseOrderService {
	return &PurchaseOrderService{
		orders:    orders,
		suppliers: suppliers,
		products:  products,
		ledger:    ledger,
		tx:        tx,
		cache:     cache,
		logger:    logger.With(slog.String("service", "purchase_orders")),
		now:       time.Now,
	}
}

// Create validates and stores a new PENDING order. The total is fixed here.
func (s *PurchaseOrderService) Create(ctx context.Context, in domain.CreateOrderInput) (*domain.PurchaseOrder, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	supplier, err := s.suppliers.FindByID(ctx, in.SupplierID)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load supplier", err)
	}

	now := s.now().UTC()
	order := &domain.PurchaseOrder{
		ID:           uuid.New(),
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Status:       domain.OrderStatusPending,
		OrderDate:    now,
		ExpectedDate: in.ExpectedDate,
		LineItems:    make([]domain.LineItem, len(in.Items)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, li := range in.Items {
		li.ID = uuid.New()
		li.OrderID = order.ID
		order.LineItems[i] = li
	}

	ok, err := s.products.ExistAll(ctx, order.ProductIDs())
	if err != nil {
		return nil, classifyError(ctx, s.logger, "check products", err)
	}
	if !ok {
		return nil, &domain.Error{
			Kind:    domain.KindNotFound,
			Code:    domain.CodeNotFound,
			Message: "one or more line item products do not exist",
		}
	}

	order.TotalAmount = order.CalculateTotal()

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, classifyError(ctx, s.logger, "create purchase order", err)
	}

	s.logger.InfoContext(ctx, "purchase order created",
		slog.String("order_id", order.ID.String()),
		slog.String("supplier_id", order.SupplierID.String()),
		slog.Int("line_items", len(order.LineItems)),
		slog.String("total_amount", order.TotalAmount.StringFixed(2)))

	invalidateStockCaches(ctx, s.cache, s.logger)
	return order, nil
}

// Get returns an order with its line items.
func (s *PurchaseOrderService) Get(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load purchase order", err)
	}
	return order, nil
}

// List pages orders newest first, optionally by status.
func (s *PurchaseOrderService) List(ctx context.Context, filter domain.OrderFilter) (*domain.Page[*domain.PurchaseOrder], error) {
	if filter.Status != "" {
		st, err := domain.ParseOrderStatus(string(filter.Status))
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	filter.Page, filter.Limit = domain.NormalizePaging(filter.Page, filter.Limit, 20)

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "list purchase orders", err)
	}
	return domain.NewPage(orders, total, filter.Page, filter.Limit), nil
}

// Receive marks a PENDING order RECEIVED and credits every line item to stock,
// all in one transaction. Any failure leaves the order PENDING and no movements.
func (s *PurchaseOrderService) Receive(ctx context.Context, orderID uuid.UUID, actorID string) (*domain.PurchaseOrder, error) {
	var received *domain.PurchaseOrder

	err := s.tx.Transaction(ctx, func(tx pgx.Tx) error {
		order, err := s.orders.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkPending(order, "received"); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusReceived, at); err != nil {
			return fmt.Errorf("failed to mark order received: %w", err)
		}

		reason := domain.ReceivedFromOrderReason(order.ID)
		for i, li := range order.LineItems {
			_, err := s.ledger.ApplyMovementTx(ctx, tx, domain.MovementInput{
				ProductID: li.ProductID,
				Direction: domain.DirectionIn,
				Quantity:  li.Quantity,
				Reason:    reason,
				ActorID:   actorID,
				OrderID:   &order.ID,
			})
			if err != nil {
				return fmt.Errorf("line item %d (product %s): %w", i+1, li.ProductID, err)
			}
		}

		order.Status = domain.OrderStatusReceived
		order.ReceivedAt = &at
		order.UpdatedAt = at
		received = order
		return nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "receive purchase order", err)
	}

	s.logger.InfoContext(ctx, "purchase order received",
		slog.String("order_id", orderID.String()),
		slog.String("actor_id", actorID),
		slog.Int("line_items", len(received.LineItems)))

	invalidateStockCaches(ctx, s.cache, s.logger)
	return received, nil
}

// Cancel moves a PENDING order to CANCELLED. Stock is not touched.
func (s *PurchaseOrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*domain.PurchaseOrder, error) {
	var cancelled *domain.PurchaseOrder

	err := s.tx.Transaction(ctx, func(tx pgx.Tx) error {
		order, err := s.orders.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkPending(order, "cancelled"); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusCancelled, at); err != nil {
			return fmt.Errorf("failed to mark order cancelled: %w", err)
		}
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &at
		order.UpdatedAt = at
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "cancel purchase order", err)
	}

	s.logger.InfoContext(ctx, "purchase order cancelled", slog.String("order_id", orderID.String()))
	invalidateStockCaches(ctx, s.cache, s.logger)
	return cancelled, nil
}

// UpdateStatus is the generic transition entry point.
func (s *PurchaseOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, actorID string) (*domain.PurchaseOrder, error) {
	switch status {
	case domain.OrderStatusReceived:
		return s.Receive(ctx, orderID, actorID)
	case domain.OrderStatusCancelled:
		return s.Cancel(ctx, orderID)
	case domain.OrderStatusPending:
		order, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.Status == domain.OrderStatusPending {
			return nil, domain.NewConflictError("purchase order %s is already pending", orderID)
		}
		return nil, domain.NewConflictError("purchase order %s is %s and cannot return to pending", orderID, order.Status)
	default:
		return nil, domain.NewValidationError("invalid purchase order status %q", status)
	}
}

// checkPending returns the Conflict for a non-PENDING order. The message tells
// the caller which terminal state blocked the transition.
func checkPending(order *domain.PurchaseOrder, action string) error {
	switch order.Status {
	case domain.OrderStatusPending:
		return nil
	case domain.OrderStatusReceived:
		if action == "received" {
			return domain.NewConflictError("purchase order %s has already been received", order.ID)
		}
		return domain.NewConflictError("purchase order %s has been received and cannot be %s", order.ID, action)
	case domain.OrderStatusCancelled:
		if action == "cancelled" {
			return domain.NewConflictError("purchase order %s is already cancelled", order.ID)
		}
		return domain.NewConflictError("purchase order %s is cancelled and cannot be %s", order.ID, action)
	default:
		return domain.NewConflictError("purchase order %s has unknown status %s", order.ID, order.Status)
	}
}
