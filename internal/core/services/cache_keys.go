// internal/core/services/cache_keys.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

const (
	cacheKeyDashboard  = "stats:dashboard"
	cacheKeyAlerts     = "stats:alerts"
	cacheKeyReportGlob = "stats:report:*"

	dashboardCacheTTL = 5 * time.Minute
	reportCacheTTL    = 10 * time.Minute
	alertsCacheTTL    = time.Minute

	// lowStockNotifyWindow suppresses repeated alerts for the same product.
	lowStockNotifyWindow = 30 * time.Minute
)

func reportCacheKey(r domain.DateRange) string {
	return fmt.Sprintf("stats:report:%s:%s", formatRangeEnd(r.From), formatRangeEnd(r.To))
}

func lowStockNotifyKey(p *domain.Product) string {
	return fmt.Sprintf("notify:low_stock:%s", p.ID)
}

func formatRangeEnd(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.UTC().Format("20060102")
}

// invalidateStockCaches drops every cached payload derived from stock levels.
// Failures are logged; a stale cache expires on its own.
func invalidateStockCaches(ctx context.Context, cache ports.CacheRepository, logger *slog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, cacheKeyDashboard, cacheKeyAlerts); err != nil {
		logger.WarnContext(ctx, "failed to invalidate stock caches", slog.String("error", err.Error()))
	}
	if err := cache.DeletePattern(ctx, cacheKeyReportGlob); err != nil {
		logger.WarnContext(ctx, "failed to invalidate report caches", slog.String("error", err.Error()))
	}
}
