// internal/adapters/db/product_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

const productSelect = `
	SELECT p.id, p.name, p.sku, p.description, p.category_id, COALESCE(c.name, ''),
		p.price, p.current_stock, p.min_stock_level, p.created_at, p.updated_at`

// ProductRepository implements ports.ProductRepository
type ProductRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new product repository
func NewProductRepository(db *Database, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "products")),
	}
}

func (r *ProductRepository) q(tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a product. Stock is always written as stored on the struct.
func (r *ProductRepository) Create(ctx context.Context, tx pgx.Tx, p *domain.Product) error {
	query := `
		INSERT INTO products (
			id, name, sku, description, category_id, price,
			current_stock, min_stock_level, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q(tx).Exec(ctx, query,
		p.ID, p.Name, p.SKU, p.Description, p.CategoryID, p.Price,
		p.CurrentStock, p.MinStockLevel, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return r.translate(err, p)
	}

	r.logger.DebugContext(ctx, "product saved",
		slog.String("product_id", p.ID.String()),
		slog.String("sku", p.SKU))
	return nil
}

// FindByID returns the product or a NotFound error.
func (r *ProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.findByID(ctx, r.db, id)
}

// FindByIDTx reads the product through tx, seeing the transaction's own writes.
func (r *ProductRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error) {
	return r.findByID(ctx, r.q(tx), id)
}

func (r *ProductRepository) findByID(ctx context.Context, q querier, id uuid.UUID) (*domain.Product, error) {
	query := productSelect + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`

	p, err := scanProduct(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("product", id)
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := productSelect + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.sku = $1`

	p, err := scanProduct(r.db.QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product by sku: %w", err)
	}
	return p, nil
}

// ExistAll reports whether every id names a product.
func (r *ProductRepository) ExistAll(ctx context.Context, ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	distinct := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE id = ANY($1)`, ids).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check products: %w", err)
	}
	return count == len(distinct), nil
}

// Update writes catalog fields. current_stock is left alone.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products SET
			name = $2, sku = $3, description = $4, category_id = $5,
			price = $6, min_stock_level = $7, updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.SKU, p.Description, p.CategoryID,
		p.Price, p.MinStockLevel, p.UpdatedAt,
	)
	if err != nil {
		return r.translate(err, p)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("product", p.ID)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgError(err); code == pgForeignKeyViolation {
			return domain.NewConflictError("product %s is still referenced and cannot be deleted", id)
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("product", id)
	}

	r.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id.String()))
	return nil
}

// List pages products by name with optional search, category and stock filters.
func (r *ProductRepository) List(ctx context.Context, filter ports.ProductFilter) ([]*domain.Product, int64, error) {
	where := squirrel.And{}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"p.name": pattern},
			squirrel.ILike{"p.sku": pattern},
		})
	}
	if filter.CategoryID != nil {
		where = append(where, squirrel.Eq{"p.category_id": *filter.CategoryID})
	}
	switch filter.StockFilter {
	case domain.StockFilterLow:
		where = append(where, squirrel.Expr("p.current_stock > 0 AND p.current_stock <= p.min_stock_level"))
	case domain.StockFilterOut:
		where = append(where, squirrel.Eq{"p.current_stock": 0})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("products p").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	qb := psql.Select(
		"p.id", "p.name", "p.sku", "p.description", "p.category_id", "COALESCE(c.name, '')",
		"p.price", "p.current_stock", "p.min_stock_level", "p.created_at", "p.updated_at",
	).From("products p").
		LeftJoin("categories c ON c.id = p.category_id").
		Where(where).
		OrderBy("p.name ASC", "p.id ASC")
	qb = paginate(qb, filter.Page, filter.Limit)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	items, err := scanAll(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan products: %w", err)
	}
	return items, total, nil
}

// ListAttention returns products at or under their minimum level, lowest stock
// first. A limit of 0 returns all of them.
func (r *ProductRepository) ListAttention(ctx context.Context, limit int) ([]*domain.Product, error) {
	qb := psql.Select(
		"p.id", "p.name", "p.sku", "p.description", "p.category_id", "COALESCE(c.name, '')",
		"p.price", "p.current_stock", "p.min_stock_level", "p.created_at", "p.updated_at",
	).From("products p").
		LeftJoin("categories c ON c.id = p.category_id").
		Where("p.current_stock <= p.min_stock_level").
		OrderBy("p.current_stock ASC", "p.name ASC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	items, err := scanAll(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return items, nil
}

// IncreaseStock adds qty to current_stock and returns the updated row.
func (r *ProductRepository) IncreaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, qty int) (*domain.Product, error) {
	query := `
		WITH updated AS (
			UPDATE products
			SET current_stock = current_stock + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)` + productSelect + `
		FROM updated p
		LEFT JOIN categories c ON c.id = p.category_id`

	p, err := scanProduct(r.q(tx).QueryRow(ctx, query, id, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("product", id)
		}
		if code, _ := pgError(err); code == pgNumericOutOfRange {
			return nil, domain.NewConflictError("stock of product %s would exceed %d", id, domain.MaxQuantity)
		}
		return nil, fmt.Errorf("failed to increase stock: %w", err)
	}
	return p, nil
}

// DecreaseStock subtracts qty only while enough stock is on hand. The WHERE
// clause and the row lock taken by UPDATE make the check and the write one step.
func (r *ProductRepository) DecreaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, qty int) (*domain.Product, bool, error) {
	query := `
		WITH updated AS (
			UPDATE products
			SET current_stock = current_stock - $2, updated_at = NOW()
			WHERE id = $1 AND current_stock >= $2
			RETURNING *
		)` + productSelect + `
		FROM updated p
		LEFT JOIN categories c ON c.id = p.category_id`

	p, err := scanProduct(r.q(tx).QueryRow(ctx, query, id, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to decrease stock: %w", err)
	}
	return p, true, nil
}

func (r *ProductRepository) translate(err error, p *domain.Product) error {
	code, constraint := pgError(err)
	switch {
	case code == pgUniqueViolation && constraint == "products_sku_key":
		return domain.NewConflictError("sku %q is already registered", p.SKU)
	case code == pgForeignKeyViolation:
		return domain.NewNotFoundError("category", p.CategoryID)
	}
	return fmt.Errorf("failed to save product: %w", err)
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Description, &p.CategoryID, &p.CategoryName,
		&p.Price, &p.CurrentStock, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// paginate applies 1-based page and limit; a zero limit leaves the query unbounded.
func paginate(qb squirrel.SelectBuilder, page, limit int) squirrel.SelectBuilder {
	if limit <= 0 {
		return qb
	}
	if page < 1 {
		page = 1
	}
	return qb.Limit(uint64(limit)).Offset(uint64((page - 1) * limit))
}
