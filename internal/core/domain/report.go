// internal/core/domain/report.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Page is a slice of results with paging metadata.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewPage computes TotalPages from total and limit.
func NewPage[T any](items []T, total int64, page, limit int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return &Page[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// NormalizePaging clamps page and limit into sane bounds.
func NormalizePaging(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// StockAlerts splits products needing attention.
type StockAlerts struct {
	OutOfStock []*Product `json:"out_of_stock"`
	LowStock   []*Product `json:"low_stock"`
	Total      int        `json:"total"`
}

// DashboardCounts are the headline numbers.
type DashboardCounts struct {
	TotalProducts       int64 `json:"total_products"`
	OutOfStockProducts  int64 `json:"out_of_stock_products"`
	PendingOrders       int64 `json:"pending_orders"`
	MonthlyTransactions int64 `json:"monthly_transactions"`
}

// DashboardStats is the dashboard payload.
type DashboardStats struct {
	Stats              DashboardCounts  `json:"stats"`
	LowStockProducts   []*Product       `json:"low_stock_products"`
	RecentTransactions []*StockMovement `json:"recent_transactions"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// CategoryStat aggregates stock per category.
type CategoryStat struct {
	Name          string `json:"name"`
	TotalStock    int64  `json:"total_stock"`
	ProductCount  int64  `json:"product_count"`
	LowStockCount int64  `json:"low_stock_count"`
}

// MovementTotals aggregates ledger activity in a date range.
type MovementTotals struct {
	TotalIn  int64 `json:"total_in"`
	TotalOut int64 `json:"total_out"`
	CountIn  int64 `json:"count_in"`
	CountOut int64 `json:"count_out"`
}

// SupplierOrderStat aggregates orders per supplier.
type SupplierOrderStat struct {
	Name        string          `json:"name"`
	OrderCount  int64           `json:"order_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// MonthlyStat is one calendar month of ledger activity.
type MonthlyStat struct {
	Month string `json:"month"`
	In    int64  `json:"in"`
	Out   int64  `json:"out"`
}

// DateRange bounds a report. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// ParseDate accepts YYYY-MM-DD or RFC 3339. An empty string is an open end.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

// ParseDateRange parses both ends. A bare end date covers the whole day.
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := ParseDate(from)
	if err != nil {
		return DateRange{}, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return DateRange{}, err
	}
	if end != nil && len(to) == len("2006-01-02") {
		e := end.Add(24*time.Hour - time.Nanosecond)
		end = &e
	}
	if start != nil && end != nil && end.Before(*start) {
		return DateRange{}, fmt.Errorf("end date must not be before start date")
	}
	return DateRange{From: start, To: end}, nil
}

// Statistics is the report payload.
type Statistics struct {
	CategoryStats      []CategoryStat      `json:"category_stats"`
	TransactionStats   MovementTotals      `json:"transaction_stats"`
	SupplierOrderStats []SupplierOrderStat `json:"supplier_order_stats"`
	MonthlyStats       []MonthlyStat       `json:"monthly_stats"`
}

// ExportDataset names what an export contains.
type ExportDataset string

const (
	ExportMovements ExportDataset = "movements"
	ExportProducts  ExportDataset = "products"
	ExportOrders    ExportDataset = "purchase-orders"
)

func (d ExportDataset) IsValid() bool {
	switch d {
	case ExportMovements, ExportProducts, ExportOrders:
		return true
	}
	return false
}

// ExportFormat is the file type of an export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

func (f ExportFormat) IsValid() bool {
	return f == FormatCSV || f == FormatXLSX
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}
