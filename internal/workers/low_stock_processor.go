// internal/workers/low_stock_processor.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// Notifier delivers a low stock alert to operators.
type Notifier interface {
	Notify(ctx context.Context, alert ports.LowStockAlert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by the logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("notifier", "log"))}
}

func (n *LogNotifier) Notify(ctx context.Context, alert ports.LowStockAlert) error {
	level := "low"
	if alert.CurrentStock == 0 {
		level = "out"
	}
	n.logger.WarnContext(ctx, "product stock below minimum",
		slog.String("level", level),
		slog.String("product_id", alert.ProductID.String()),
		slog.String("product_name", alert.ProductName),
		slog.String("sku", alert.SKU),
		slog.Int("current_stock", alert.CurrentStock),
		slog.Int("min_stock_level", alert.MinStockLevel))
	return nil
}

// LowStockProcessor handles stock:low_alert tasks.
type LowStockProcessor struct {
	catalog  ports.CatalogService
	notifier Notifier
	logger   *slog.Logger
}

// NewLowStockProcessor creates a new low stock processor
func NewLowStockProcessor(catalog ports.CatalogService, notifier Notifier, logger *slog.Logger) *LowStockProcessor {
	return &LowStockProcessor{
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.With(slog.String("processor", "low_stock")),
	}
}

// ProcessTask re-reads the product and notifies only if it is still at or
// below its minimum level. Stock restored while the task waited is skipped.
func (p *LowStockProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var alert ports.LowStockAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	product, err := p.catalog.GetProduct(ctx, alert.ProductID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			p.logger.InfoContext(ctx, "product no longer exists, alert dropped",
				slog.String("product_id", alert.ProductID.String()))
			return nil
		}
		return fmt.Errorf("failed to load product: %w", err)
	}

	if !product.NeedsAttention() {
		p.logger.InfoContext(ctx, "stock restored before alert was delivered",
			slog.String("product_id", product.ID.String()),
			slog.Int("current_stock", product.CurrentStock))
		return nil
	}

	alert.ProductName = product.Name
	alert.SKU = product.SKU
	alert.CurrentStock = product.CurrentStock
	alert.MinStockLevel = product.MinStockLevel

	if err := p.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("failed to send low stock alert: %w", err)
	}

	p.logger.InfoContext(ctx, "low stock alert delivered",
		slog.String("product_id", product.ID.String()),
		slog.String("movement_id", alert.MovementID.String()))
	return nil
}
