// internal/workers/analytics_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// AnalyticsProcessor keeps the cached dashboard warm.
type AnalyticsProcessor struct {
	reports ports.ReportService
	logger  *slog.Logger
}

// NewAnalyticsProcessor creates a new analytics processor
func NewAnalyticsProcessor(reports ports.ReportService, logger *slog.Logger) *AnalyticsProcessor {
	return &AnalyticsProcessor{
		reports: reports,
		logger:  logger.With(slog.String("processor", "analytics")),
	}
}

// ProcessTask drops cached report payloads and rebuilds the dashboard and alerts.
func (p *AnalyticsProcessor) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	p.reports.InvalidateCaches(ctx)

	stats, err := p.reports.DashboardStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh dashboard: %w", err)
	}
	alerts, err := p.reports.StockAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh stock alerts: %w", err)
	}

	p.logger.InfoContext(ctx, "dashboard refreshed",
		slog.Int64("total_products", stats.Stats.TotalProducts),
		slog.Int("alerts", alerts.Total))
	return nil
}
