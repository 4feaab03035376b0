// internal/handlers/purchase_orders.go
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// PurchaseOrderHandler handles purchase orders and receiving
type PurchaseOrderHandler struct {
	orders ports.PurchaseOrderService
	logger *slog.Logger
}

func NewPurchaseOrderHandler(orders ports.PurchaseOrderService, logger *slog.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		orders: orders,
		logger: logger.With(slog.String("handler", "purchase_orders")),
	}
}

// CreateOrderRequest is the body of POST /api/v1/purchase-orders.
type CreateOrderRequest struct {
	SupplierID   string             `json:"supplier_id"`
	ExpectedDate string             `json:"expected_date"`
	Items        []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// UpdateStatusRequest is the body of PUT /api/v1/purchase-orders/{id}.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (req CreateOrderRequest) toInput() (domain.CreateOrderInput, error) {
	supplierID, err := uuid.Parse(strings.TrimSpace(req.SupplierID))
	if err != nil {
		return domain.CreateOrderInput{}, domain.NewValidationError("supplier_id must be a valid id")
	}
	expected, err := domain.ParseDate(strings.TrimSpace(req.ExpectedDate))
	if err != nil {
		return domain.CreateOrderInput{}, domain.NewValidationError("expected_date: %v", err)
	}

	in := domain.CreateOrderInput{SupplierID: supplierID, Items: make([]domain.LineItem, 0, len(req.Items))}
	if expected != nil {
		in.ExpectedDate = *expected
	}
	for i, item := range req.Items {
		productID, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			return domain.CreateOrderInput{}, domain.NewValidationError("items[%d].product_id must be a valid id", i)
		}
		in.Items = append(in.Items, domain.LineItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return in, nil
}

// List handles GET /api/v1/purchase-orders
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := domain.OrderFilter{}
	filter.Page, filter.Limit = parsePaging(r)
	if s := r.URL.Query().Get("status"); s != "" && !strings.EqualFold(s, "all") {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			respondServiceError(ctx, w, h.logger, "list purchase orders", err)
			return
		}
		filter.Status = status
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list purchase orders", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, page)
}

// Get handles GET /api/v1/purchase-orders/{id}
func (h *PurchaseOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	order, err := h.orders.Get(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "get purchase order", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, order)
}

// Create handles POST /api/v1/purchase-orders
func (h *PurchaseOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create purchase order", err)
		return
	}

	order, err := h.orders.Create(ctx, in)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create purchase order", err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/purchase-orders/%s", order.ID))
	respondJSON(w, h.logger, http.StatusCreated, order)
}

// Receive handles PUT /api/v1/purchase-orders/{id}/receive
func (h *PurchaseOrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.OrderStatusReceived)
}

// Cancel handles PUT /api/v1/purchase-orders/{id}/cancel
func (h *PurchaseOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.OrderStatusCancelled)
}

// UpdateStatus handles PUT /api/v1/purchase-orders/{id}
func (h *PurchaseOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update purchase order status", err)
		return
	}
	h.transition(w, r, status)
}

func (h *PurchaseOrderHandler) transition(w http.ResponseWriter, r *http.Request, status domain.OrderStatus) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var order *domain.PurchaseOrder
	switch status {
	case domain.OrderStatusReceived:
		order, err = h.orders.Receive(ctx, id, actor.String())
	case domain.OrderStatusCancelled:
		order, err = h.orders.Cancel(ctx, id)
	default:
		order, err = h.orders.UpdateStatus(ctx, id, status, actor.String())
	}
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update purchase order status", err)
		return
	}

	h.logger.InfoContext(ctx, "purchase order status changed",
		slog.String("order_id", id.String()),
		slog.String("status", string(order.Status)))
	respondJSON(w, h.logger, http.StatusOK, order)
}
