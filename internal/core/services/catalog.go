// internal/core/services/catalog.go
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// CatalogService manages products, categories and suppliers.
type CatalogService struct {
	products   ports.ProductRepository
	categories ports.CategoryRepository
	suppliers  ports.SupplierRepository
	movements  ports.MovementRepository
	orders     ports.PurchaseOrderRepository
	ledger     ports.StockLedger
	tx         ports.Transactor
	cache      ports.CacheRepository
	logger     *slog.Logger
}

// Statically assert that *CatalogService implements the CatalogService interface.
var _ ports.CatalogService = (*CatalogService)(nil)

// CatalogDeps groups the collaborators of CatalogService.
type CatalogDeps struct {
	Products   ports.ProductRepository
	Categories ports.CategoryRepository
	Suppliers  ports.SupplierRepository
	Movements  ports.MovementRepository
	Orders     ports.PurchaseOrderRepository
	Ledger     ports.StockLedger
	Tx         ports.Transactor
	Cache      ports.CacheRepository
}

func NewCatalogService(deps CatalogDeps, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		products:   deps.Products,
		categories: deps.Categories,
		suppliers:  deps.Suppliers,
		movements:  deps.Movements,
		orders:     deps.Orders,
		ledger:     deps.Ledger,
		tx:         deps.Tx,
		cache:      deps.Cache,
		logger:     logger.With(slog.String("service", "catalog")),
	}
}

// CreateProduct stores a product. A non-zero opening stock is recorded as an IN
// movement in the same transaction so the ledger balances from the start.
func (s *CatalogService) CreateProduct(ctx context.Context, product *domain.Product, actorID string) (*domain.Product, error) {
	product.Normalize()
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.categories.FindByID(ctx, product.CategoryID); err != nil {
		return nil, classifyError(ctx, s.logger, "load category", err)
	}
	if existing, err := s.products.FindBySKU(ctx, product.SKU); err != nil {
		return nil, classifyError(ctx, s.logger, "check sku", err)
	} else if existing != nil {
		return nil, domain.NewConflictError("sku %q is already registered", product.SKU)
	}

	opening := product.CurrentStock
	now := time.Now().UTC()
	product.ID = uuid.New()
	product.CurrentStock = 0
	product.CreatedAt = now
	product.UpdatedAt = now

	err := s.tx.Transaction(ctx, func(tx pgx.Tx) error {
		if err := s.products.Create(ctx, tx, product); err != nil {
			return err
		}
		if opening == 0 {
			return nil
		}
		res, err := s.ledger.ApplyMovementTx(ctx, tx, domain.MovementInput{
			ProductID: product.ID,
			Direction: domain.DirectionIn,
			Quantity:  opening,
			Reason:    domain.OpeningBalanceReason,
			ActorID:   actorID,
		})
		if err != nil {
			return err
		}
		product.CurrentStock = res.Product.CurrentStock
		return nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "create product", err)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID.String()),
		slog.String("sku", product.SKU),
		slog.Int("opening_stock", opening))

	invalidateStockCaches(ctx, s.cache, s.logger)
	return product, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load product", err)
	}
	return p, nil
}

// UpdateProduct changes catalog fields. CurrentStock in the input is ignored.
func (s *CatalogService) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	existing, err := s.products.FindByID(ctx, product.ID)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load product", err)
	}

	product.Normalize()
	product.CurrentStock = existing.CurrentStock
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if product.CategoryID != existing.CategoryID {
		if _, err := s.categories.FindByID(ctx, product.CategoryID); err != nil {
			return nil, classifyError(ctx, s.logger, "load category", err)
		}
	}
	if product.SKU != existing.SKU {
		other, err := s.products.FindBySKU(ctx, product.SKU)
		if err != nil {
			return nil, classifyError(ctx, s.logger, "check sku", err)
		}
		if other != nil && other.ID != product.ID {
			return nil, domain.NewConflictError("sku %q is already registered", product.SKU)
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	if err := s.products.Update(ctx, product); err != nil {
		return nil, classifyError(ctx, s.logger, "update product", err)
	}

	invalidateStockCaches(ctx, s.cache, s.logger)
	return s.GetProduct(ctx, product.ID)
}

// DeleteProduct removes a product that has no ledger history and no order lines.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if _, err := s.products.FindByID(ctx, id); err != nil {
		return classifyError(ctx, s.logger, "load product", err)
	}

	hasMovements, err := s.movements.HasMovements(ctx, id)
	if err != nil {
		return classifyError(ctx, s.logger, "check product movements", err)
	}
	if hasMovements {
		return domain.NewConflictError("product %s has stock movements and cannot be deleted", id)
	}

	referenced, err := s.orders.ReferencesProduct(ctx, id)
	if err != nil {
		return classifyError(ctx, s.logger, "check purchase orders", err)
	}
	if referenced {
		return domain.NewConflictError("product %s is referenced by purchase orders and cannot be deleted", id)
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return classifyError(ctx, s.logger, "delete product", err)
	}

	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id.String()))
	invalidateStockCaches(ctx, s.cache, s.logger)
	return nil
}

// ListProducts pages products with search, category and stock filters.
func (s *CatalogService) ListProducts(ctx context.Context, filter ports.ProductFilter) (*domain.Page[*domain.Product], error) {
	if filter.StockFilter == "" {
		filter.StockFilter = domain.StockFilterAll
	}
	if !filter.StockFilter.IsValid() {
		return nil, domain.NewValidationError("stock filter must be all, low or out")
	}
	filter.Page, filter.Limit = domain.NormalizePaging(filter.Page, filter.Limit, 10)

	items, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "list products", err)
	}
	return domain.NewPage(items, total, filter.Page, filter.Limit), nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	category.ID = uuid.New()
	category.CreatedAt = now
	category.UpdatedAt = now

	if err := s.categories.Create(ctx, category); err != nil {
		return nil, classifyError(ctx, s.logger, "create category", err)
	}
	s.logger.InfoContext(ctx, "category created", slog.String("category_id", category.ID.String()))
	return category, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load category", err)
	}
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	category.UpdatedAt = time.Now().UTC()
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, classifyError(ctx, s.logger, "update category", err)
	}
	invalidateStockCaches(ctx, s.cache, s.logger)
	return s.GetCategory(ctx, category.ID)
}

// DeleteCategory refuses to orphan products.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return classifyError(ctx, s.logger, "load category", err)
	}
	if category.ProductCount > 0 {
		return domain.NewConflictError("category %q still has %d products and cannot be deleted", category.Name, category.ProductCount)
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return classifyError(ctx, s.logger, "delete category", err)
	}
	invalidateStockCaches(ctx, s.cache, s.logger)
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	items, err := s.categories.List(ctx)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "list categories", err)
	}
	return items, nil
}

func (s *CatalogService) CreateSupplier(ctx context.Context, supplier *domain.Supplier) (*domain.Supplier, error) {
	if err := supplier.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	supplier.ID = uuid.New()
	supplier.CreatedAt = now
	supplier.UpdatedAt = now

	if err := s.suppliers.Create(ctx, supplier); err != nil {
		return nil, classifyError(ctx, s.logger, "create supplier", err)
	}
	s.logger.InfoContext(ctx, "supplier created", slog.String("supplier_id", supplier.ID.String()))
	return supplier, nil
}

func (s *CatalogService) GetSupplier(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	sup, err := s.suppliers.FindByID(ctx, id)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load supplier", err)
	}
	return sup, nil
}

func (s *CatalogService) UpdateSupplier(ctx context.Context, supplier *domain.Supplier) (*domain.Supplier, error) {
	if err := supplier.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.suppliers.FindByID(ctx, supplier.ID)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load supplier", err)
	}
	supplier.CreatedAt = existing.CreatedAt
	supplier.UpdatedAt = time.Now().UTC()
	if err := s.suppliers.Update(ctx, supplier); err != nil {
		return nil, classifyError(ctx, s.logger, "update supplier", err)
	}
	invalidateStockCaches(ctx, s.cache, s.logger)
	return supplier, nil
}

func (s *CatalogService) ListSuppliers(ctx context.Context) ([]*domain.Supplier, error) {
	items, err := s.suppliers.List(ctx)
	if err != nil {
		return nil, classifyError(ctx, s.logger, "list suppliers", err)
	}
	return items, nil
}
