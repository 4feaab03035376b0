// internal/core/services/reports.go
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ReportService reads the ledger for alerts, dashboards, statistics and exports.
// It never writes stock.
type ReportService struct {
	reports  ports.ReportRepository
	products ports.ProductRepository
	cache    ports.CacheRepository
	tasks    ports.TaskEnqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// Statically assert that *ReportService implements the ReportService interface.
var _ ports.ReportService = (*ReportService)(nil)

func NewReportService(
	reports ports.ReportRepository,
	products ports.ProductRepository,
	cache ports.CacheRepository,
	tasks ports.TaskEnqueuer,
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		reports:  reports,
		products: products,
		cache:    cache,
		tasks:    tasks,
		logger:   logger.With(slog.String("service", "reports")),
		now:      time.Now,
	}
}

// StockAlerts lists products at or under their minimum level.
func (s *ReportService) StockAlerts(ctx context.Context) (*domain.StockAlerts, error) {
	var alerts domain.StockAlerts
	err := s.cached(ctx, cacheKeyAlerts, &alerts, alertsCacheTTL, func() (interface{}, error) {
		products, err := s.products.ListAttention(ctx, 0)
		if err != nil {
			return nil, err
		}
		return splitAlerts(products), nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load stock alerts", err)
	}
	return &alerts, nil
}

func splitAlerts(products []*domain.Product) *domain.StockAlerts {
	alerts := &domain.StockAlerts{
		OutOfStock: []*domain.Product{},
		LowStock:   []*domain.Product{},
	}
	for _, p := range products {
		switch {
		case p.IsOutOfStock():
			alerts.OutOfStock = append(alerts.OutOfStock, p)
		case p.IsLowStock():
			alerts.LowStock = append(alerts.LowStock, p)
		}
	}
	alerts.Total = len(alerts.OutOfStock) + len(alerts.LowStock)
	return alerts
}

// DashboardStats returns headline counts plus the top low stock products and
// the most recent movements.
func (s *ReportService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := s.cached(ctx, cacheKeyDashboard, &stats, dashboardCacheTTL, func() (interface{}, error) {
		now := s.now()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

		counts, err := s.reports.DashboardCounts(ctx, monthStart)
		if err != nil {
			return nil, err
		}
		low, err := s.products.ListAttention(ctx, 5)
		if err != nil {
			return nil, err
		}
		recent, err := s.reports.RecentMovements(ctx, 10)
		if err != nil {
			return nil, err
		}
		return &domain.DashboardStats{
			Stats:              *counts,
			LowStockProducts:   nonNil(low),
			RecentTransactions: nonNil(recent),
			GeneratedAt:        now.UTC(),
		}, nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load dashboard stats", err)
	}
	return &stats, nil
}

// Statistics aggregates categories, ledger totals, supplier orders and the last
// six calendar months of movements.
func (s *ReportService) Statistics(ctx context.Context, r domain.DateRange) (*domain.Statistics, error) {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return nil, domain.NewValidationError("end date must not be before start date")
	}

	var stats domain.Statistics
	err := s.cached(ctx, reportCacheKey(r), &stats, reportCacheTTL, func() (interface{}, error) {
		categories, err := s.reports.CategoryStats(ctx)
		if err != nil {
			return nil, err
		}
		totals, err := s.reports.MovementTotals(ctx, r)
		if err != nil {
			return nil, err
		}
		suppliers, err := s.reports.SupplierOrderStats(ctx, r)
		if err != nil {
			return nil, err
		}

		months := lastMonths(s.now().UTC(), 6)
		byMonth, err := s.reports.MonthlyMovements(ctx, months[0].start)
		if err != nil {
			return nil, err
		}
		monthly := make([]domain.MonthlyStat, len(months))
		for i, m := range months {
			stat := byMonth[m.label]
			stat.Month = m.label
			monthly[i] = stat
		}

		return &domain.Statistics{
			CategoryStats:      nonNilSlice(categories),
			TransactionStats:   *totals,
			SupplierOrderStats: nonNilSlice(suppliers),
			MonthlyStats:       monthly,
		}, nil
	})
	if err != nil {
		return nil, classifyError(ctx, s.logger, "load statistics", err)
	}
	return &stats, nil
}

type monthBucket struct {
	label string
	start time.Time
}

// lastMonths returns n calendar months ending with the month of now, oldest first.
func lastMonths(now time.Time, n int) []monthBucket {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]monthBucket, n)
	for i := 0; i < n; i++ {
		m := first.AddDate(0, -(n - 1 - i), 0)
		out[i] = monthBucket{label: MonthLabel(m), start: m}
	}
	return out
}

// MonthLabel formats a month as "YYYY/M", the key used by MonthlyMovements.
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%d/%d", t.Year(), int(t.Month()))
}

// Export renders a dataset to w synchronously.
func (s *ReportService) Export(ctx context.Context, w io.Writer, dataset domain.ExportDataset, format domain.ExportFormat, r domain.DateRange) error {
	if !dataset.IsValid() {
		return domain.NewValidationError("unknown export dataset %q", dataset)
	}
	if !format.IsValid() {
		return domain.NewValidationError("format must be csv or xlsx")
	}

	table, err := newTableWriter(format, string(dataset))
	if err != nil {
		return classifyError(ctx, s.logger, "prepare export", err)
	}

	rows := 0
	switch dataset {
	case domain.ExportMovements:
		err = table.Header(movementColumns)
		if err == nil {
			err = s.reports.StreamMovements(ctx, r, func(m *domain.StockMovement) error {
				rows++
				return table.Row(movementRow(m))
			})
		}
	case domain.ExportProducts:
		err = table.Header(productColumns)
		if err == nil {
			err = s.reports.StreamProducts(ctx, func(p *domain.Product) error {
				rows++
				return table.Row(productRow(p))
			})
		}
	case domain.ExportOrders:
		err = table.Header(orderColumns)
		if err == nil {
			err = s.reports.StreamOrders(ctx, r, func(o *domain.PurchaseOrder) error {
				rows++
				return table.Row(orderRow(o))
			})
		}
	}
	if err != nil {
		return classifyError(ctx, s.logger, "export "+string(dataset), err)
	}

	if err := table.Flush(w); err != nil {
		return classifyError(ctx, s.logger, "write export", err)
	}

	s.logger.InfoContext(ctx, "export rendered",
		slog.String("dataset", string(dataset)),
		slog.String("format", string(format)),
		slog.Int("rows", rows))
	return nil
}

// RequestExport enqueues a background export whose file lands in object storage.
func (s *ReportService) RequestExport(ctx context.Context, req ports.ExportRequest) (string, string, error) {
	if !req.Dataset.IsValid() {
		return "", "", domain.NewValidationError("unknown export dataset %q", req.Dataset)
	}
	if req.Format == "" {
		req.Format = domain.FormatCSV
	}
	if !req.Format.IsValid() {
		return "", "", domain.NewValidationError("format must be csv or xlsx")
	}
	if s.tasks == nil {
		return "", "", domain.NewInternalError("background exports are not configured", nil)
	}

	req.ObjectKey = ExportObjectKey(s.now(), req.Dataset, req.Format)
	taskID, err := s.tasks.EnqueueExport(ctx, req)
	if err != nil {
		return "", "", classifyError(ctx, s.logger, "enqueue export", err)
	}

	s.logger.InfoContext(ctx, "export requested",
		slog.String("task_id", taskID),
		slog.String("object_key", req.ObjectKey))
	return taskID, req.ObjectKey, nil
}

// ExportObjectKey is where a background export is stored.
func ExportObjectKey(now time.Time, dataset domain.ExportDataset, format domain.ExportFormat) string {
	name := fmt.Sprintf("%s-%s-%s.%s", dataset, now.UTC().Format("20060102-150405"), uuid.NewString()[:8], format)
	return path.Join(ExportPrefix, now.UTC().Format("2006/01/02"), name)
}

// ExportPrefix is the object storage prefix of export files.
const ExportPrefix = "exports"

// InvalidateCaches drops every cached report.
func (s *ReportService) InvalidateCaches(ctx context.Context) {
	invalidateStockCaches(ctx, s.cache, s.logger)
}

func (s *ReportService) cached(ctx context.Context, key string, dest interface{}, ttl time.Duration, fetch func() (interface{}, error)) error {
	if s.cache == nil {
		v, err := fetch()
		if err != nil {
			return err
		}
		return assign(dest, v)
	}
	return s.cache.GetOrSet(ctx, key, dest, fetch, ttl)
}

func nonNil[T any](items []*T) []*T {
	if items == nil {
		return []*T{}
	}
	return items
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
