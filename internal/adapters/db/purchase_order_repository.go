// internal/adapters/db/purchase_order_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

var orderColumns = []string{
	"o.id", "o.supplier_id", "COALESCE(s.name, '')", "o.status", "o.order_date", "o.expected_date",
	"o.total_amount", "o.received_at", "o.cancelled_at", "o.created_at", "o.updated_at",
}

// PurchaseOrderRepository implements ports.PurchaseOrderRepository
type PurchaseOrderRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)

func NewPurchaseOrderRepository(db *Database, logger *slog.Logger) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "purchase_orders")),
	}
}

// Create saves the order header and its line items in one transaction.
func (r *PurchaseOrderRepository) Create(ctx context.Context, order *domain.PurchaseOrder) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO purchase_orders (
				id, supplier_id, status, order_date, expected_date,
				total_amount, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, order.SupplierID, string(order.Status), order.OrderDate, order.ExpectedDate,
			order.TotalAmount, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if code, _ := pgError(err); code == pgForeignKeyViolation {
				return domain.NewNotFoundError("supplier", order.SupplierID)
			}
			return fmt.Errorf("failed to save purchase order: %w", err)
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO purchase_order_items (id, order_id, product_id, position, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for i, li := range order.LineItems {
			batch.Queue(query, li.ID, order.ID, li.ProductID, i+1, li.Quantity, li.UnitPrice)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i, li := range order.LineItems {
			if _, err := br.Exec(); err != nil {
				if code, _ := pgError(err); code == pgForeignKeyViolation {
					return domain.NewNotFoundError("product", li.ProductID)
				}
				return fmt.Errorf("failed to save line item %d: %w", i+1, err)
			}
		}

		r.logger.DebugContext(ctx, "purchase order saved",
			slog.String("order_id", order.ID.String()),
			slog.Int("line_items", len(order.LineItems)))
		return nil
	})
}

func (r *PurchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	return r.load(ctx, r.db, id, false)
}

// LockByID takes FOR UPDATE on the order row, serializing transitions.
func (r *PurchaseOrderRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PurchaseOrder, error) {
	if tx == nil {
		return nil, errors.New("LockByID requires a transaction")
	}
	return r.load(ctx, tx, id, true)
}

func (r *PurchaseOrderRepository) load(ctx context.Context, q querier, id uuid.UUID, lock bool) (*domain.PurchaseOrder, error) {
	qb := r.selectOrders().Where(squirrel.Eq{"o.id": id})
	if lock {
		qb = qb.Suffix("FOR UPDATE OF o")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	order, err := scanOrder(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("purchase order", id)
		}
		return nil, fmt.Errorf("failed to find purchase order: %w", err)
	}

	if err := r.attachItems(ctx, q, []*domain.PurchaseOrder{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus sets status and the matching received_at or cancelled_at stamp.
func (r *PurchaseOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OrderStatus, at time.Time) error {
	var receivedAt, cancelledAt *time.Time
	switch status {
	case domain.OrderStatusReceived:
		receivedAt = &at
	case domain.OrderStatusCancelled:
		cancelledAt = &at
	}

	query := `
		UPDATE purchase_orders SET
			status = $2,
			received_at = COALESCE($3, received_at),
			cancelled_at = COALESCE($4, cancelled_at),
			updated_at = $5
		WHERE id = $1`

	var q querier = r.db
	if tx != nil {
		q = tx
	}
	tag, err := q.Exec(ctx, query, id, string(status), receivedAt, cancelledAt, at)
	if err != nil {
		return fmt.Errorf("failed to update purchase order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("purchase order", id)
	}

	r.logger.DebugContext(ctx, "purchase order status updated",
		slog.String("order_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// List pages orders newest first with their line items.
func (r *PurchaseOrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.PurchaseOrder, int64, error) {
	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"o.status": string(filter.Status)})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("purchase_orders o").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchase orders: %w", err)
	}

	qb := paginate(r.selectOrders().Where(where).OrderBy("o.created_at DESC", "o.id DESC"), filter.Page, filter.Limit)
	orders, err := r.query(ctx, qb)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *PurchaseOrderRepository) ReferencesProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM purchase_order_items WHERE product_id = $1)`, productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase order items: %w", err)
	}
	return exists, nil
}

func (r *PurchaseOrderRepository) selectOrders() squirrel.SelectBuilder {
	return psql.Select(orderColumns...).
		From("purchase_orders o").
		LeftJoin("suppliers s ON s.id = o.supplier_id")
}

func (r *PurchaseOrderRepository) query(ctx context.Context, qb squirrel.SelectBuilder) ([]*domain.PurchaseOrder, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase orders: %w", err)
	}
	orders, err := scanAll(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchase orders: %w", err)
	}
	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the line items of orders with one query.
func (r *PurchaseOrderRepository) attachItems(ctx context.Context, q querier, orders []*domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*domain.PurchaseOrder, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.LineItems = []domain.LineItem{}
	}

	rows, err := q.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.unit_price
		FROM purchase_order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.position`, ids)
	if err != nil {
		return fmt.Errorf("failed to query line items: %w", err)
	}
	items, err := scanAll(rows, func(row rowScanner) (*domain.LineItem, error) {
		li := &domain.LineItem{}
		if err := row.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.ProductName, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, err
		}
		return li, nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan line items: %w", err)
	}

	for _, li := range items {
		if o, ok := byID[li.OrderID]; ok {
			o.LineItems = append(o.LineItems, *li)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	o := &domain.PurchaseOrder{}
	var status string
	err := row.Scan(
		&o.ID, &o.SupplierID, &o.SupplierName, &status, &o.OrderDate, &o.ExpectedDate,
		&o.TotalAmount, &o.ReceivedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}
