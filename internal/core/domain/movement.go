// internal/core/domain/movement.go
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity is the largest quantity or stock level the store can hold.
const MaxQuantity = math.MaxInt32

// Direction is the sign of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ParseDirection accepts IN or OUT in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionIn, DirectionOut:
		return d, nil
	}
	return "", NewValidationError("direction must be IN or OUT, got %q", s)
}

// Signed returns qty with the sign implied by d.
func (d Direction) Signed(qty int) int {
	if d == DirectionOut {
		return -qty
	}
	return qty
}

// OpeningBalanceReason is recorded when a product is created with initial stock.
const OpeningBalanceReason = "opening balance"

// ReceivedFromOrderReason is the movement reason written when receiving a purchase order.
func ReceivedFromOrderReason(orderID uuid.UUID) string {
	return fmt.Sprintf("received from order %s", orderID)
}

// StockMovement is an immutable ledger entry.
type StockMovement struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	Direction      Direction  `json:"direction"`
	Quantity       int        `json:"quantity"`
	Reason         string     `json:"reason"`
	ActorID        string     `json:"actor_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Denormalized for listings.
	ProductName string `json:"product_name,omitempty"`
	ProductSKU  string `json:"product_sku,omitempty"`
}

// MovementInput is a request to apply one movement.
type MovementInput struct {
	ProductID      uuid.UUID
	Direction      Direction
	Quantity       int
	Reason         string
	ActorID        string
	IdempotencyKey string
	OrderID        *uuid.UUID
}

// Validate runs before any write.
func (in *MovementInput) Validate() error {
	if in.ProductID == uuid.Nil {
		return NewValidationError("product_id is required")
	}
	if in.Direction != DirectionIn && in.Direction != DirectionOut {
		return NewValidationError("direction must be IN or OUT")
	}
	if in.Quantity <= 0 {
		return NewValidationError("quantity must be a positive integer")
	}
	if in.Quantity > MaxQuantity {
		return NewValidationError("quantity must not exceed %d", MaxQuantity)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return NewValidationError("reason is required")
	}
	if len(in.IdempotencyKey) > 255 {
		return NewValidationError("idempotency key must be at most 255 characters")
	}
	return nil
}

// ToMovement builds the record to insert.
func (in *MovementInput) ToMovement() *StockMovement {
	m := &StockMovement{
		ID:        uuid.New(),
		ProductID: in.ProductID,
		Direction: in.Direction,
		Quantity:  in.Quantity,
		Reason:    strings.TrimSpace(in.Reason),
		ActorID:   in.ActorID,
		OrderID:   in.OrderID,
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		m.IdempotencyKey = &key
	}
	return m
}

// MovementResult is the created movement joined with the product's new state.
type MovementResult struct {
	Movement *StockMovement `json:"movement"`
	Product  *Product       `json:"product"`
	Replayed bool           `json:"replayed"`
}

// MovementFilter pages the ledger.
type MovementFilter struct {
	ProductID *uuid.UUID
	Direction Direction
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// Reconciliation compares a product's stored stock to the net of its ledger.
type Reconciliation struct {
	ProductID     uuid.UUID `json:"product_id"`
	CurrentStock  int       `json:"current_stock"`
	LedgerBalance int       `json:"ledger_balance"`
	MovementCount int       `json:"movement_count"`
	Consistent    bool      `json:"consistent"`
}
