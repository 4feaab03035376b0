// internal/core/domain/purchase_order.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the purchase order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus validates a status value from a request.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case OrderStatusPending, OrderStatusReceived, OrderStatusCancelled:
		return st, nil
	}
	return "", NewValidationError("invalid purchase order status %q", s)
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReceived || s == OrderStatusCancelled
}

// LineItem is one product-quantity-price entry of an order. Immutable.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Total is quantity times unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) Validate() error {
	if li.ProductID == uuid.Nil {
		return NewValidationError("line item product_id is required")
	}
	if li.Quantity < 1 {
		return NewValidationError("line item quantity must be at least 1")
	}
	if li.Quantity > MaxQuantity {
		return NewValidationError("line item quantity must not exceed %d", MaxQuantity)
	}
	if li.UnitPrice.IsNegative() {
		return NewValidationError("line item unit_price cannot be negative")
	}
	return nil
}

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID           uuid.UUID       `json:"id"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	SupplierName string          `json:"supplier_name,omitempty"`
	Status       OrderStatus     `json:"status"`
	OrderDate    time.Time       `json:"order_date"`
	ExpectedDate time.Time       `json:"expected_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ReceivedAt   *time.Time      `json:"received_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	LineItems    []LineItem      `json:"line_items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CalculateTotal sums the line totals. Called once, at creation.
func (o *PurchaseOrder) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.LineItems {
		total = total.Add(li.Total())
	}
	return total
}

// ProductIDs returns the distinct products referenced by the order.
func (o *PurchaseOrder) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.LineItems))
	ids := make([]uuid.UUID, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		if _, ok := seen[li.ProductID]; ok {
			continue
		}
		seen[li.ProductID] = struct{}{}
		ids = append(ids, li.ProductID)
	}
	return ids
}

// CreateOrderInput is a request for a new purchase order.
type CreateOrderInput struct {
	SupplierID   uuid.UUID
	ExpectedDate time.Time
	Items        []LineItem
}

func (in *CreateOrderInput) Validate() error {
	if in.SupplierID == uuid.Nil {
		return NewValidationError("supplier_id is required")
	}
	if in.ExpectedDate.IsZero() {
		return NewValidationError("expected_date is required")
	}
	if len(in.Items) == 0 {
		return NewValidationError("at least one line item is required")
	}
	for _, li := range in.Items {
		if err := li.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OrderFilter pages purchase orders.
type OrderFilter struct {
	Status OrderStatus
	Page   int
	Limit  int
}
