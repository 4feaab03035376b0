// internal/adapters/db/movement_repository.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

const movementIdempotencyConstraint = "stock_movements_idempotency_key_key"

var movementColumns = []string{
	"m.id", "m.product_id", "m.direction", "m.quantity", "m.reason", "m.actor_id",
	"m.order_id", "m.idempotency_key", "m.created_at",
	"COALESCE(p.name, '')", "COALESCE(p.sku, '')",
}

// MovementRepository implements ports.MovementRepository over the
// append-only stock_movements table.
type MovementRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.MovementRepository = (*MovementRepository)(nil)

func NewMovementRepository(db *Database, logger *slog.Logger) *MovementRepository {
	return &MovementRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "stock_movements")),
	}
}

// Insert appends m inside tx. A reused idempotency key surfaces as
// domain.ErrDuplicateIdempotencyKey.
func (r *MovementRepository) Insert(ctx context.Context, tx pgx.Tx, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			id, product_id, direction, quantity, reason, actor_id, order_id, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	var q querier = r.db
	if tx != nil {
		q = tx
	}

	err := q.QueryRow(ctx, query,
		m.ID, m.ProductID, string(m.Direction), m.Quantity, m.Reason, m.ActorID,
		m.OrderID, m.IdempotencyKey,
	).Scan(&m.CreatedAt)
	if err != nil {
		code, constraint := pgError(err)
		switch {
		case code == pgUniqueViolation && constraint == movementIdempotencyConstraint:
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, *m.IdempotencyKey)
		case code == pgForeignKeyViolation && m.OrderID != nil && constraint == "stock_movements_order_id_fkey":
			return domain.NewNotFoundError("purchase order", *m.OrderID)
		case code == pgForeignKeyViolation:
			return domain.NewNotFoundError("product", m.ProductID)
		}
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}

	r.logger.DebugContext(ctx, "stock movement recorded",
		slog.String("movement_id", m.ID.String()),
		slog.String("product_id", m.ProductID.String()))
	return nil
}

func (r *MovementRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.StockMovement, error) {
	query, args, err := r.selectMovements().Where(squirrel.Eq{"m.idempotency_key": key}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	m, err := scanMovement(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find movement by idempotency key: %w", err)
	}
	return m, nil
}

// List pages the ledger newest first.
func (r *MovementRepository) List(ctx context.Context, filter domain.MovementFilter) ([]*domain.StockMovement, int64, error) {
	where := squirrel.And{}
	if filter.ProductID != nil {
		where = append(where, squirrel.Eq{"m.product_id": *filter.ProductID})
	}
	if filter.Direction != "" {
		where = append(where, squirrel.Eq{"m.direction": string(filter.Direction)})
	}
	if filter.StartDate != nil {
		where = append(where, squirrel.GtOrEq{"m.created_at": *filter.StartDate})
	}
	if filter.EndDate != nil {
		where = append(where, squirrel.LtOrEq{"m.created_at": *filter.EndDate})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("stock_movements m").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	qb := paginate(r.selectMovements().Where(where).OrderBy("m.created_at DESC", "m.id DESC"), filter.Page, filter.Limit)
	items, err := r.query(ctx, qb)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MovementRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.StockMovement, error) {
	return r.query(ctx, r.selectMovements().
		Where(squirrel.Eq{"m.product_id": productID}).
		OrderBy("m.created_at DESC", "m.id DESC"))
}

func (r *MovementRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.StockMovement, error) {
	return r.query(ctx, r.selectMovements().
		Where(squirrel.Eq{"m.order_id": orderID}).
		OrderBy("m.created_at ASC", "m.id ASC"))
}

// LedgerBalance sums IN minus OUT for a product.
func (r *MovementRepository) LedgerBalance(ctx context.Context, productID uuid.UUID) (int, int, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END), 0),
			COUNT(*)
		FROM stock_movements
		WHERE product_id = $1`

	var balance, count int64
	if err := r.db.QueryRow(ctx, query, productID).Scan(&balance, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to sum movements: %w", err)
	}
	return int(balance), int(count), nil
}

func (r *MovementRepository) HasMovements(ctx context.Context, productID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_movements WHERE product_id = $1)`, productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check movements: %w", err)
	}
	return exists, nil
}

func (r *MovementRepository) selectMovements() squirrel.SelectBuilder {
	return psql.Select(movementColumns...).
		From("stock_movements m").
		LeftJoin("products p ON p.id = m.product_id")
}

func (r *MovementRepository) query(ctx context.Context, qb squirrel.SelectBuilder) ([]*domain.StockMovement, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	items, err := scanAll(rows, scanMovement)
	if err != nil {
		return nil, fmt.Errorf("failed to scan movements: %w", err)
	}
	return items, nil
}

func scanMovement(row rowScanner) (*domain.StockMovement, error) {
	m := &domain.StockMovement{}
	var (
		direction string
		orderID   pgtype.UUID
		key       pgtype.Text
	)
	err := row.Scan(
		&m.ID, &m.ProductID, &direction, &m.Quantity, &m.Reason, &m.ActorID,
		&orderID, &key, &m.CreatedAt,
		&m.ProductName, &m.ProductSKU,
	)
	if err != nil {
		return nil, err
	}

	m.Direction = domain.Direction(direction)
	if orderID.Valid {
		id := uuid.UUID(orderID.Bytes)
		m.OrderID = &id
	}
	if key.Valid {
		k := key.String
		m.IdempotencyKey = &k
	}
	return m, nil
}
