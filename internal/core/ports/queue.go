// internal/core/ports/queue.go
package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
)

// LowStockAlert is the payload of a low stock notification.
type LowStockAlert struct {
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	SKU           string    `json:"sku"`
	CurrentStock  int       `json:"current_stock"`
	MinStockLevel int       `json:"min_stock_level"`
	MovementID    uuid.UUID `json:"movement_id"`
}

// ExportRequest asks the worker to render a dataset into object storage.
type ExportRequest struct {
	Dataset     domain.ExportDataset `json:"dataset"`
	Format      domain.ExportFormat  `json:"format"`
	From        string               `json:"from,omitempty"`
	To          string               `json:"to,omitempty"`
	RequestedBy string               `json:"requested_by"`
	ObjectKey   string               `json:"object_key"`
}

// ImportRequest asks the worker to load products from an uploaded spreadsheet.
type ImportRequest struct {
	ObjectKey   string `json:"object_key"`
	Filename    string `json:"filename"`
	RequestedBy string `json:"requested_by"`
}

// TaskEnqueuer schedules background work. Implementations return the task id.
type TaskEnqueuer interface {
	EnqueueLowStockAlert(ctx context.Context, alert LowStockAlert) (string, error)
	EnqueueExport(ctx context.Context, req ExportRequest) (string, error)
	EnqueueImport(ctx context.Context, req ImportRequest) (string, error)
}
