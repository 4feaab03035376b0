// internal/core/ports/repositories.go
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
)

// Methods taking a pgx.Tx run inside the caller's transaction. All others use the pool.

// ProductRepository persists catalog products. Stock is changed only through
// IncreaseStock and DecreaseStock.
type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error)
	// FindBySKU returns nil, nil when no product has the sku.
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ExistAll(ctx context.Context, ids []uuid.UUID) (bool, error)
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int64, error)
	ListAttention(ctx context.Context, limit int) ([]*domain.Product, error)

	// IncreaseStock adds qty and returns the new product state, or NotFound.
	IncreaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, qty int) (*domain.Product, error)
	// DecreaseStock subtracts qty only when current_stock >= qty. applied is false
	// when no row matched, either because the product is missing or stock is short.
	DecreaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, qty int) (product *domain.Product, applied bool, err error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search      string
	CategoryID  *uuid.UUID
	StockFilter domain.StockFilter
	Page        int
	Limit       int
}

// MovementRepository appends to and reads the stock ledger. There is no update or delete.
type MovementRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, movement *domain.StockMovement) error
	// FindByIdempotencyKey returns nil, nil for an unused key.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.StockMovement, error)
	List(ctx context.Context, filter domain.MovementFilter) ([]*domain.StockMovement, int64, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.StockMovement, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.StockMovement, error)
	// LedgerBalance returns the signed sum and count of movements for a product.
	LedgerBalance(ctx context.Context, productID uuid.UUID) (balance int, count int, err error)
	HasMovements(ctx context.Context, productID uuid.UUID) (bool, error)
}

// PurchaseOrderRepository persists purchase orders and their line items.
type PurchaseOrderRepository interface {
	Create(ctx context.Context, order *domain.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error)
	// LockByID loads the order with its line items and holds a row lock until tx ends.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OrderStatus, at time.Time) error
	List(ctx context.Context, filter domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error)
	ReferencesProduct(ctx context.Context, productID uuid.UUID) (bool, error)
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*domain.Category, error)
}

// SupplierRepository persists suppliers.
type SupplierRepository interface {
	Create(ctx context.Context, supplier *domain.Supplier) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Supplier, error)
	Update(ctx context.Context, supplier *domain.Supplier) error
	List(ctx context.Context) ([]*domain.Supplier, error)
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// FindByEmail returns nil, nil when the address is unused.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*domain.User, error)
}

// ReportRepository runs the aggregate queries behind dashboards and reports.
type ReportRepository interface {
	DashboardCounts(ctx context.Context, monthStart time.Time) (*domain.DashboardCounts, error)
	RecentMovements(ctx context.Context, limit int) ([]*domain.StockMovement, error)
	CategoryStats(ctx context.Context) ([]domain.CategoryStat, error)
	MovementTotals(ctx context.Context, r domain.DateRange) (*domain.MovementTotals, error)
	SupplierOrderStats(ctx context.Context, r domain.DateRange) ([]domain.SupplierOrderStat, error)
	// MonthlyMovements returns in/out quantities keyed by "YYYY/M" since the given time.
	MonthlyMovements(ctx context.Context, since time.Time) (map[string]domain.MonthlyStat, error)
	// StreamMovements calls fn for every movement in the range, oldest first.
	StreamMovements(ctx context.Context, r domain.DateRange, fn func(*domain.StockMovement) error) error
	StreamProducts(ctx context.Context, fn func(*domain.Product) error) error
	StreamOrders(ctx context.Context, r domain.DateRange, fn func(*domain.PurchaseOrder) error) error
}
