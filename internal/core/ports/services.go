// internal/core/ports/services.go
package ports

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
)

// StockLedger applies and reads stock movements.
type StockLedger interface {
	ApplyMovement(ctx context.Context, in domain.MovementInput) (*domain.MovementResult, error)
	// ApplyMovementTx applies a movement inside the caller's transaction. Post-commit
	// effects are the caller's responsibility.
	ApplyMovementTx(ctx context.Context, tx pgx.Tx, in domain.MovementInput) (*domain.MovementResult, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) (*domain.Page[*domain.StockMovement], error)
	ProductHistory(ctx context.Context, productID uuid.UUID) ([]*domain.StockMovement, error)
	Reconcile(ctx context.Context, productID uuid.UUID) (*domain.Reconciliation, error)
}

// PurchaseOrderService manages purchase orders and receiving.
type PurchaseOrderService interface {
	Create(ctx context.Context, in domain.CreateOrderInput) (*domain.PurchaseOrder, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error)
	List(ctx context.Context, filter domain.OrderFilter) (*domain.Page[*domain.PurchaseOrder], error)
	Receive(ctx context.Context, orderID uuid.UUID, actorID string) (*domain.PurchaseOrder, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*domain.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, actorID string) (*domain.PurchaseOrder, error)
}

// CatalogService manages products, categories and suppliers.
type CatalogService interface {
	CreateProduct(ctx context.Context, product *domain.Product, actorID string) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, filter ProductFilter) (*domain.Page[*domain.Product], error)

	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]*domain.Category, error)

	CreateSupplier(ctx context.Context, supplier *domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier *domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]*domain.Supplier, error)
}

// UserService manages operators.
type UserService interface {
	Create(ctx context.Context, user *domain.User, password string) (*domain.User, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) (*domain.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error
}

// ReportService produces alerts, dashboards, statistics and exports.
type ReportService interface {
	StockAlerts(ctx context.Context) (*domain.StockAlerts, error)
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	Statistics(ctx context.Context, r domain.DateRange) (*domain.Statistics, error)
	Export(ctx context.Context, w io.Writer, dataset domain.ExportDataset, format domain.ExportFormat, r domain.DateRange) error
	RequestExport(ctx context.Context, req ExportRequest) (taskID string, objectKey string, err error)
	InvalidateCaches(ctx context.Context)
}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
