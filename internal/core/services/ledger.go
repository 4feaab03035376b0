// internal/core/services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// StockLedgerService is the only writer of Product.CurrentStock.
//
// Each movement is applied with a conditional UPDATE (current_stock >= qty for
// outbound movements) and the movement insert in the same transaction, so the
// row lock taken by the UPDATE is the serialization point for a product.
type StockLedgerService struct {
	products  ports.ProductRepository
	movements ports.MovementRepository
	tx        ports.Transactor
	cache     ports.CacheRepository
	tasks     ports.TaskEnqueuer
	logger    *slog.Logger
}

// Statically assert that *StockLedgerService implements the StockLedger interface.
var _ ports.StockLedger = (*StockLedgerService)(nil)

// NewStockLedgerService creates the ledger. cache and tasks may be nil.
func NewStockLedgerService(
	products ports.ProductRepository,
	movements ports.MovementRepository,
	tx ports.Transactor,
	cache ports.CacheRepository,
	tasks ports.TaskEnqueuer,
	logger *slog.Logger,
) *StockLedgerService {
	return &StockLedgerService{
		products:  products,
		movements: movements,
		tx:        tx,
		cache:     cache,
		tasks:     tasks,
		logger:    logger.With(slog.String("service", "stock_ledger")),
	}
}

// ApplyMovement validates the input, then records the movement and the new stock
// level atomically. A movement carrying an already used idempotency key is not
// applied again; the original result is returned with Replayed set.
func (s *StockLedgerService) ApplyMovement(ctx context.Context, in domain.MovementInput) (*domain.MovementResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		res, err := s.replay(ctx, key, in)
		if err != nil || res != nil {
			return res, err
		}
	}

	var result *domain.MovementResult
	err := s.tx.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = s.apply(ctx, tx, in)
		return err
	})
	if err != nil {
		// A concurrent call with the same key either won the insert race or
		// committed first and drained the stock this call needed.
		if key != "" && (errors.Is(err, domain.ErrDuplicateIdempotencyKey) || errors.Is(err, domain.ErrInsufficientStock)) {
			res, rerr := s.replay(ctx, key, in)
			if rerr != nil {
				return nil, rerr
			}
			if res != nil {
				return res, nil
			}
		}
		return nil, s.classify(ctx, "apply movement", err)
	}

	s.logger.InfoContext(ctx, "stock movement applied",
		slog.String("movement_id", result.Movement.ID.String()),
		slog.String("product_id", in.ProductID.String()),
		slog.String("direction", string(in.Direction)),
		slog.Int("quantity", in.Quantity),
		slog.Int("current_stock", result.Product.CurrentStock))

	s.afterCommit(ctx, result)
	return result, nil
}

// ApplyMovementTx applies a movement inside tx without post-commit effects.
func (s *StockLedgerService) ApplyMovementTx(ctx context.Context, tx pgx.Tx, in domain.MovementInput) (*domain.MovementResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, in)
}

func (s *StockLedgerService) apply(ctx context.Context, tx pgx.Tx, in domain.MovementInput) (*domain.MovementResult, error) {
	var product *domain.Product

	switch in.Direction {
	case domain.DirectionIn:
		p, err := s.products.IncreaseStock(ctx, tx, in.ProductID, in.Quantity)
		if err != nil {
			return nil, err
		}
		product = p

	case domain.DirectionOut:
		p, applied, err := s.products.DecreaseStock(ctx, tx, in.ProductID, in.Quantity)
		if err != nil {
			return nil, err
		}
		if !applied {
			current, err := s.products.FindByIDTx(ctx, tx, in.ProductID)
			if err != nil {
				return nil, err
			}
			return nil, domain.NewInsufficientStockError(in.ProductID, in.Quantity, current.CurrentStock)
		}
		product = p

	default:
		return nil, domain.NewValidationError("direction must be IN or OUT")
	}

	movement := in.ToMovement()
	if err := s.movements.Insert(ctx, tx, movement); err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}
	movement.ProductName = product.Name
	movement.ProductSKU = product.SKU

	return &domain.MovementResult{Movement: movement, Product: product}, nil
}

// replay returns the stored result for key, nil when the key is unused, or a
// Conflict when the key was used for a different movement.
func (s *StockLedgerService) replay(ctx context.Context, key string, in domain.MovementInput) (*domain.MovementResult, error) {
	existing, err := s.movements.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, s.classify(ctx, "look up idempotency key", err)
	}
	if existing == nil {
		return nil, nil
	}

	if existing.ProductID != in.ProductID || existing.Direction != in.Direction || existing.Quantity != in.Quantity {
		return nil, domain.NewConflictError("idempotency key %q was already used for a different movement", key)
	}

	product, err := s.products.FindByID(ctx, existing.ProductID)
	if err != nil {
		return nil, s.classify(ctx, "load product", err)
	}

	s.logger.InfoContext(ctx, "replayed stock movement",
		slog.String("movement_id", existing.ID.String()),
		slog.String("idempotency_key", key))

	return &domain.MovementResult{Movement: existing, Product: product, Replayed: true}, nil
}

func (s *StockLedgerService) afterCommit(ctx context.Context, result *domain.MovementResult) {
	invalidateStockCaches(ctx, s.cache, s.logger)

	if result.Movement.Direction != domain.DirectionOut || !result.Product.NeedsAttention() {
		return
	}
	s.notifyLowStock(ctx, result)
}

func (s *StockLedgerService) notifyLowStock(ctx context.Context, result *domain.MovementResult) {
	if s.tasks == nil {
		return
	}
	p := result.Product

	if s.cache != nil {
		first, err := s.cache.SetNX(ctx, lowStockNotifyKey(p), p.CurrentStock, lowStockNotifyWindow)
		if err == nil && !first {
			return
		}
	}

	taskID, err := s.tasks.EnqueueLowStockAlert(ctx, ports.LowStockAlert{
		ProductID:     p.ID,
		ProductName:   p.Name,
		SKU:           p.SKU,
		CurrentStock:  p.CurrentStock,
		MinStockLevel: p.MinStockLevel,
		MovementID:    result.Movement.ID,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue low stock alert",
			slog.String("product_id", p.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	s.logger.InfoContext(ctx, "low stock alert enqueued",
		slog.String("product_id", p.ID.String()),
		slog.String("task_id", taskID))
}

// ListMovements pages the ledger newest first.
func (s *StockLedgerService) ListMovements(ctx context.Context, filter domain.MovementFilter) (*domain.Page[*domain.StockMovement], error) {
	if filter.Direction != "" && filter.Direction != domain.DirectionIn && filter.Direction != domain.DirectionOut {
		return nil, domain.NewValidationError("direction must be IN or OUT")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, domain.NewValidationError("end_date must not be before start_date")
	}
	filter.Page, filter.Limit = domain.NormalizePaging(filter.Page, filter.Limit, 20)

	items, total, err := s.movements.List(ctx, filter)
	if err != nil {
		return nil, s.classify(ctx, "list movements", err)
	}
	return domain.NewPage(items, total, filter.Page, filter.Limit), nil
}

// ProductHistory returns every movement of a product, newest first.
func (s *StockLedgerService) ProductHistory(ctx context.Context, productID uuid.UUID) ([]*domain.StockMovement, error) {
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return nil, s.classify(ctx, "load product", err)
	}
	items, err := s.movements.ListByProduct(ctx, productID)
	if err != nil {
		return nil, s.classify(ctx, "list product movements", err)
	}
	return items, nil
}

// Reconcile compares the stored stock with the net sum of the product's movements.
func (s *StockLedgerService) Reconcile(ctx context.Context, productID uuid.UUID) (*domain.Reconciliation, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, s.classify(ctx, "load product", err)
	}
	balance, count, err := s.movements.LedgerBalance(ctx, productID)
	if err != nil {
		return nil, s.classify(ctx, "sum movements", err)
	}

	rec := &domain.Reconciliation{
		ProductID:     productID,
		CurrentStock:  product.CurrentStock,
		LedgerBalance: balance,
		MovementCount: count,
		Consistent:    balance == product.CurrentStock,
	}
	if !rec.Consistent {
		s.logger.ErrorContext(ctx, "stock ledger out of balance",
			slog.String("product_id", productID.String()),
			slog.Int("current_stock", product.CurrentStock),
			slog.Int("ledger_balance", balance))
	}
	return rec, nil
}

// classify passes domain errors through and wraps everything else as Internal.
func (s *StockLedgerService) classify(ctx context.Context, op string, err error) error {
	return classifyError(ctx, s.logger, op, err)
}
