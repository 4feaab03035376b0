// internal/core/domain/product.go
package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockFilter narrows product listings by stock level.
type StockFilter string

const (
	StockFilterAll StockFilter = "all"
	StockFilterLow StockFilter = "low"
	StockFilterOut StockFilter = "out"
)

// IsValid reports whether f is a known stock filter.
func (f StockFilter) IsValid() bool {
	switch f {
	case StockFilterAll, StockFilterLow, StockFilterOut:
		return true
	}
	return false
}

// Product is a catalog entry. CurrentStock is owned by the stock ledger once the
// product exists.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Description   string          `json:"description,omitempty"`
	CategoryID    uuid.UUID       `json:"category_id"`
	CategoryName  string          `json:"category_name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	CurrentStock  int             `json:"current_stock"`
	MinStockLevel int             `json:"min_stock_level"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks catalog fields. CurrentStock is only checked for the opening balance.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name is required")
	}
	if strings.TrimSpace(p.SKU) == "" {
		return NewValidationError("sku is required")
	}
	if p.CategoryID == uuid.Nil {
		return NewValidationError("category_id is required")
	}
	if p.Price.IsNegative() {
		return NewValidationError("price cannot be negative")
	}
	if p.CurrentStock < 0 {
		return NewValidationError("current_stock cannot be negative")
	}
	if p.MinStockLevel < 0 {
		return NewValidationError("min_stock_level cannot be negative")
	}
	if p.CurrentStock > MaxQuantity || p.MinStockLevel > MaxQuantity {
		return NewValidationError("stock levels must not exceed %d", MaxQuantity)
	}
	return nil
}

// Normalize trims text fields before storage.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.SKU = strings.TrimSpace(p.SKU)
	p.Description = strings.TrimSpace(p.Description)
}

// IsOutOfStock reports an empty shelf.
func (p *Product) IsOutOfStock() bool {
	return p.CurrentStock == 0
}

// IsLowStock reports stock at or under the advisory threshold while still above zero.
func (p *Product) IsLowStock() bool {
	return p.CurrentStock > 0 && p.CurrentStock <= p.MinStockLevel
}

// NeedsAttention reports whether the product belongs in stock alerts.
func (p *Product) NeedsAttention() bool {
	return p.CurrentStock <= p.MinStockLevel
}

// Category groups products.
type Category struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Category) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return NewValidationError("category name is required")
	}
	return nil
}

// Supplier is a vendor that purchase orders are placed with.
type Supplier struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Supplier) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	if s.Name == "" {
		return NewValidationError("supplier name is required")
	}
	if s.Email != "" && !IsValidEmail(s.Email) {
		return NewValidationError("email must be a valid address")
	}
	return nil
}

// IsValidEmail accepts a bare address without display name.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
