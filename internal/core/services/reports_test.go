package services_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/mock/gomock"

	redis_a "github.com/ammerola/stockledger/internal/adapters/redis_adapter"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

type reportMocks struct {
	reports  *mocks.MockReportRepository
	products *mocks.MockProductRepository
	tasks    *mocks.MockTaskEnqueuer
}

func newReportService(t *testing.T, cache ports.CacheRepository, withTasks bool) (*services.ReportService, reportMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := reportMocks{
		reports:  mocks.NewMockReportRepository(ctrl),
		products: mocks.NewMockProductRepository(ctrl),
		tasks:    mocks.NewMockTaskEnqueuer(ctrl),
	}
	var tasks ports.TaskEnqueuer
	if withTasks {
		tasks = m.tasks
	}
	return services.NewReportService(m.reports, m.products, cache, tasks, helpers.TestLogger()), m
}

func TestReportService_StockAlerts(t *testing.T) {
	svc, m := newReportService(t, nil, false)
	out := helpers.CreateTestProduct(func(p *domain.Product) { p.CurrentStock = 0; p.MinStockLevel = 5 })
	low := helpers.CreateTestProduct(func(p *domain.Product) { p.CurrentStock = 5; p.MinStockLevel = 5 })
	m.products.EXPECT().ListAttention(gomock.Any(), 0).Return([]*domain.Product{out, low}, nil)

	alerts, err := svc.StockAlerts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, alerts.Total)
	require.Len(t, alerts.OutOfStock, 1)
	require.Len(t, alerts.LowStock, 1)
	assert.Equal(t, out.ID, alerts.OutOfStock[0].ID)
	assert.Equal(t, low.ID, alerts.LowStock[0].ID)
}

func TestReportService_StockAlerts_Cached(t *testing.T) {
	r := helpers.SetupTestRedis(t)
	cache := redis_a.NewCache(r.Client, "test", helpers.TestLogger())
	svc, m := newReportService(t, cache, false)

	m.products.EXPECT().ListAttention(gomock.Any(), 0).
		Return([]*domain.Product{helpers.CreateTestProduct(func(p *domain.Product) { p.CurrentStock = 0 })}, nil).
		Times(1)

	first, err := svc.StockAlerts(context.Background())
	require.NoError(t, err)
	second, err := svc.StockAlerts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.True(t, r.Server.Exists("test:stats:alerts"))

	svc.InvalidateCaches(context.Background())
	assert.False(t, r.Server.Exists("test:stats:alerts"))
}

func TestReportService_DashboardStats(t *testing.T) {
	svc, m := newReportService(t, nil, false)
	m.reports.EXPECT().DashboardCounts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, monthStart time.Time) (*domain.DashboardCounts, error) {
			assert.Equal(t, 1, monthStart.Day())
			assert.Equal(t, 0, monthStart.Hour())
			return &domain.DashboardCounts{TotalProducts: 6, OutOfStockProducts: 1, PendingOrders: 2}, nil
		})
	m.products.EXPECT().ListAttention(gomock.Any(), 5).Return(nil, nil)
	m.reports.EXPECT().RecentMovements(gomock.Any(), 10).Return(nil, nil)

	stats, err := svc.DashboardStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Stats.TotalProducts)
	assert.NotNil(t, stats.LowStockProducts)
	assert.NotNil(t, stats.RecentTransactions)
}

func TestReportService_DashboardStats_RepositoryError(t *testing.T) {
	svc, m := newReportService(t, nil, false)
	m.reports.EXPECT().DashboardCounts(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := svc.DashboardStats(context.Background())

	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestReportService_Statistics(t *testing.T) {
	t.Run("fills_six_months", func(t *testing.T) {
		svc, m := newReportService(t, nil, false)
		current := services.MonthLabel(time.Now().UTC())

		m.reports.EXPECT().CategoryStats(gomock.Any()).Return(nil, nil)
		m.reports.EXPECT().MovementTotals(gomock.Any(), gomock.Any()).Return(&domain.MovementTotals{TotalIn: 30, TotalOut: 12}, nil)
		m.reports.EXPECT().SupplierOrderStats(gomock.Any(), gomock.Any()).Return(nil, nil)
		m.reports.EXPECT().MonthlyMovements(gomock.Any(), gomock.Any()).
			Return(map[string]domain.MonthlyStat{current: {In: 30, Out: 12}}, nil)

		stats, err := svc.Statistics(context.Background(), domain.DateRange{})

		require.NoError(t, err)
		require.Len(t, stats.MonthlyStats, 6)
		last := stats.MonthlyStats[5]
		assert.Equal(t, current, last.Month)
		assert.Equal(t, int64(30), last.In)
		assert.Equal(t, int64(12), last.Out)
		assert.Equal(t, int64(0), stats.MonthlyStats[0].In)
		assert.NotNil(t, stats.CategoryStats)
		assert.Equal(t, int64(30), stats.TransactionStats.TotalIn)
	})

	t.Run("rejects_inverted_range", func(t *testing.T) {
		svc, _ := newReportService(t, nil, false)
		from := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 0, -1)

		_, err := svc.Statistics(context.Background(), domain.DateRange{From: &from, To: &to})

		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "2026/3", services.MonthLabel(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025/12", services.MonthLabel(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestReportService_Export(t *testing.T) {
	pen := helpers.CreateTestProduct(func(p *domain.Product) {
		p.Name = "Gel Pen"
		p.SKU = "OF-PEN-BLU"
		p.CategoryName = "Office Supplies"
		p.CurrentStock = 0
		p.MinStockLevel = 40
	})
	paper := helpers.CreateTestProduct(func(p *domain.Product) {
		p.Name = "A4 Paper"
		p.SKU = "OF-A4-500"
		p.CurrentStock = 300
		p.MinStockLevel = 50
	})
	stream := func(_ context.Context, fn func(*domain.Product) error) error {
		for _, p := range []*domain.Product{pen, paper} {
			if err := fn(p); err != nil {
				return err
			}
		}
		return nil
	}

	t.Run("products_as_csv", func(t *testing.T) {
		svc, m := newReportService(t, nil, false)
		m.reports.EXPECT().StreamProducts(gomock.Any(), gomock.Any()).DoAndReturn(stream)

		var buf bytes.Buffer
		err := svc.Export(context.Background(), &buf, domain.ExportProducts, domain.FormatCSV, domain.DateRange{})
		require.NoError(t, err)

		records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Product ID", records[0][0])
		assert.Equal(t, "OF-PEN-BLU", records[1][2])
		assert.Equal(t, "out_of_stock", records[1][7])
		assert.Equal(t, "ok", records[2][7])
	})

	t.Run("products_as_xlsx", func(t *testing.T) {
		svc, m := newReportService(t, nil, false)
		m.reports.EXPECT().StreamProducts(gomock.Any(), gomock.Any()).DoAndReturn(stream)

		var buf bytes.Buffer
		err := svc.Export(context.Background(), &buf, domain.ExportProducts, domain.FormatXLSX, domain.DateRange{})
		require.NoError(t, err)

		file, err := xlsx.OpenBinary(buf.Bytes())
		require.NoError(t, err)
		require.Len(t, file.Sheets, 1)
		assert.Equal(t, 3, file.Sheets[0].MaxRow)
	})

	t.Run("unknown_dataset", func(t *testing.T) {
		svc, _ := newReportService(t, nil, false)
		err := svc.Export(context.Background(), &bytes.Buffer{}, "invoices", domain.FormatCSV, domain.DateRange{})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("stream_failure_is_internal", func(t *testing.T) {
		svc, m := newReportService(t, nil, false)
		m.reports.EXPECT().StreamMovements(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cursor closed"))

		err := svc.Export(context.Background(), &bytes.Buffer{}, domain.ExportMovements, domain.FormatCSV, domain.DateRange{})

		assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	})
}

func TestReportService_RequestExport(t *testing.T) {
	t.Run("enqueues_with_object_key", func(t *testing.T) {
		svc, m := newReportService(t, nil, true)
		m.tasks.EXPECT().EnqueueExport(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req ports.ExportRequest) (string, error) {
				assert.Equal(t, domain.FormatCSV, req.Format)
				assert.True(t, strings.HasPrefix(req.ObjectKey, services.ExportPrefix+"/"), req.ObjectKey)
				assert.True(t, strings.HasSuffix(req.ObjectKey, ".csv"), req.ObjectKey)
				return "task-9", nil
			})

		taskID, key, err := svc.RequestExport(context.Background(), ports.ExportRequest{Dataset: domain.ExportMovements})

		require.NoError(t, err)
		assert.Equal(t, "task-9", taskID)
		assert.Contains(t, key, "movements-")
	})

	t.Run("unavailable_without_queue", func(t *testing.T) {
		svc, _ := newReportService(t, nil, false)

		_, _, err := svc.RequestExport(context.Background(), ports.ExportRequest{Dataset: domain.ExportMovements})

		assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	})

	t.Run("rejects_bad_format", func(t *testing.T) {
		svc, _ := newReportService(t, nil, true)

		_, _, err := svc.RequestExport(context.Background(), ports.ExportRequest{Dataset: domain.ExportProducts, Format: "pdf"})

		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}

func TestExportObjectKey(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	key := services.ExportObjectKey(now, domain.ExportOrders, domain.FormatXLSX)

	assert.True(t, strings.HasPrefix(key, "exports/2026/10/16/purchase-orders-20261016-093000-"), key)
	assert.True(t, strings.HasSuffix(key, ".xlsx"), key)
}
