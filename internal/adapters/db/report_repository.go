// internal/adapters/db/report_repository.go
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ReportRepository runs read-only aggregates over the catalog and the ledger.
type ReportRepository struct {
	db     *Database
	logger *slog.Logger

	movements *MovementRepository
	orders    *PurchaseOrderRepository
}

var _ ports.ReportRepository = (*ReportRepository)(nil)

func NewReportRepository(db *Database, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{
		db:        db,
		logger:    logger.With(slog.String("repository", "reports")),
		movements: NewMovementRepository(db, logger),
		orders:    NewPurchaseOrderRepository(db, logger),
	}
}

func (r *ReportRepository) DashboardCounts(ctx context.Context, monthStart time.Time) (*domain.DashboardCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE current_stock = 0),
			(SELECT COUNT(*) FROM purchase_orders WHERE status = 'PENDING'),
			(SELECT COUNT(*) FROM stock_movements WHERE created_at >= $1)`

	c := &domain.DashboardCounts{}
	err := r.db.QueryRow(ctx, query, monthStart).Scan(
		&c.TotalProducts, &c.OutOfStockProducts, &c.PendingOrders, &c.MonthlyTransactions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard counts: %w", err)
	}
	return c, nil
}

func (r *ReportRepository) RecentMovements(ctx context.Context, limit int) ([]*domain.StockMovement, error) {
	qb := r.movements.selectMovements().OrderBy("m.created_at DESC", "m.id DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	return r.movements.query(ctx, qb)
}

func (r *ReportRepository) CategoryStats(ctx context.Context) ([]domain.CategoryStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			c.name,
			COALESCE(SUM(p.current_stock), 0),
			COUNT(p.id),
			COUNT(p.id) FILTER (WHERE p.current_stock <= p.min_stock_level)
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category stats: %w", err)
	}
	stats, err := scanAll(rows, func(row rowScanner) (*domain.CategoryStat, error) {
		s := &domain.CategoryStat{}
		if err := row.Scan(&s.Name, &s.TotalStock, &s.ProductCount, &s.LowStockCount); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan category stats: %w", err)
	}
	return deref(stats), nil
}

func (r *ReportRepository) MovementTotals(ctx context.Context, dr domain.DateRange) (*domain.MovementTotals, error) {
	qb := psql.Select(
		"COALESCE(SUM(quantity) FILTER (WHERE direction = 'IN'), 0)",
		"COALESCE(SUM(quantity) FILTER (WHERE direction = 'OUT'), 0)",
		"COUNT(*) FILTER (WHERE direction = 'IN')",
		"COUNT(*) FILTER (WHERE direction = 'OUT')",
	).From("stock_movements")
	qb = withRange(qb, "created_at", dr)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	t := &domain.MovementTotals{}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&t.TotalIn, &t.TotalOut, &t.CountIn, &t.CountOut); err != nil {
		return nil, fmt.Errorf("failed to load movement totals: %w", err)
	}
	return t, nil
}

// SupplierOrderStats counts received and pending orders per supplier, largest
// spend first. Cancelled orders are left out.
func (r *ReportRepository) SupplierOrderStats(ctx context.Context, dr domain.DateRange) ([]domain.SupplierOrderStat, error) {
	join := squirrel.And{
		squirrel.Expr("o.supplier_id = s.id"),
		squirrel.NotEq{"o.status": string(domain.OrderStatusCancelled)},
	}
	if dr.From != nil {
		join = append(join, squirrel.GtOrEq{"o.order_date": *dr.From})
	}
	if dr.To != nil {
		join = append(join, squirrel.LtOrEq{"o.order_date": *dr.To})
	}
	joinSQL, joinArgs, err := join.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build join: %w", err)
	}

	query, args, err := psql.Select("s.name", "COUNT(o.id)", "COALESCE(SUM(o.total_amount), 0)").
		From("suppliers s").
		LeftJoin("purchase_orders o ON "+joinSQL, joinArgs...).
		GroupBy("s.id", "s.name").
		OrderBy("3 DESC", "s.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query supplier stats: %w", err)
	}
	stats, err := scanAll(rows, func(row rowScanner) (*domain.SupplierOrderStat, error) {
		s := &domain.SupplierOrderStat{}
		var total decimal.Decimal
		if err := row.Scan(&s.Name, &s.OrderCount, &total); err != nil {
			return nil, err
		}
		s.TotalAmount = total
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan supplier stats: %w", err)
	}
	return deref(stats), nil
}

// MonthlyMovements buckets movement quantities by calendar month in UTC.
func (r *ReportRepository) MonthlyMovements(ctx context.Context, since time.Time) (map[string]domain.MonthlyStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int,
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int,
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'IN'), 0),
			COALESCE(SUM(quantity) FILTER (WHERE direction = 'OUT'), 0)
		FROM stock_movements
		WHERE created_at >= $1
		GROUP BY 1, 2`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly movements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.MonthlyStat)
	for rows.Next() {
		var year, month int
		var stat domain.MonthlyStat
		if err := rows.Scan(&year, &month, &stat.In, &stat.Out); err != nil {
			return nil, fmt.Errorf("failed to scan monthly movements: %w", err)
		}
		stat.Month = fmt.Sprintf("%d/%d", year, month)
		out[stat.Month] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// StreamMovements walks the ledger oldest first without buffering the result.
func (r *ReportRepository) StreamMovements(ctx context.Context, dr domain.DateRange, fn func(*domain.StockMovement) error) error {
	qb := withRange(r.movements.selectMovements(), "m.created_at", dr).OrderBy("m.created_at ASC", "m.id ASC")
	query, args, err := qb.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query movements: %w", err)
	}
	return stream(rows, scanMovement, fn)
}

func (r *ReportRepository) StreamProducts(ctx context.Context, fn func(*domain.Product) error) error {
	rows, err := r.db.Query(ctx, productSelect+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.name ASC, p.id ASC`)
	if err != nil {
		return fmt.Errorf("failed to query products: %w", err)
	}
	return stream(rows, scanProduct, fn)
}

// StreamOrders loads orders in the range with line items, then calls fn for each.
func (r *ReportRepository) StreamOrders(ctx context.Context, dr domain.DateRange, fn func(*domain.PurchaseOrder) error) error {
	qb := withRange(r.orders.selectOrders(), "o.order_date", dr).OrderBy("o.order_date ASC", "o.id ASC")
	orders, err := r.orders.query(ctx, qb)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

func withRange(qb squirrel.SelectBuilder, column string, dr domain.DateRange) squirrel.SelectBuilder {
	if dr.From != nil {
		qb = qb.Where(squirrel.GtOrEq{column: *dr.From})
	}
	if dr.To != nil {
		qb = qb.Where(squirrel.LtOrEq{column: *dr.To})
	}
	return qb
}

func stream[T any](rows pgx.Rows, scan func(rowScanner) (*T, error), fn func(*T) error) error {
	defer rows.Close()
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

func deref[T any](items []*T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = *it
	}
	return out
}
