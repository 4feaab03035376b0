// internal/handlers/dashboard.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// DashboardHandler serves stock alerts, the dashboard and report statistics.
type DashboardHandler struct {
	reports ports.ReportService
	logger  *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(reports ports.ReportService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		reports: reports,
		logger:  logger.With(slog.String("handler", "dashboard")),
	}
}

// StockAlerts handles GET /api/v1/stock-alerts
func (h *DashboardHandler) StockAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alerts, err := h.reports.StockAlerts(ctx)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "load stock alerts", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, alerts)
}

// GetDashboard handles GET /api/v1/dashboard/stats
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.reports.DashboardStats(ctx)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "load dashboard", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, stats)
}

// Statistics handles GET /api/v1/reports/statistics?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *DashboardHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := parseDateRange(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	stats, err := h.reports.Statistics(ctx, rng)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "load statistics", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, stats)
}
