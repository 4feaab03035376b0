// Package queue publishes background tasks to asynq.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/ports"
)

const (
	TypeLowStockAlert  = "stock:low_alert"
	TypeExportReport   = "report:export"
	TypeCatalogImport  = "catalog:import"
	TypeCleanupExports = "cleanup:exports"
	TypeRefreshStats   = "stats:refresh"
)

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// NewLowStockAlertTask builds the task sent after an outbound movement leaves a
// product at or below its minimum level.
func NewLowStockAlertTask(alert ports.LowStockAlert) (*asynq.Task, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal low stock alert: %w", err)
	}
	return asynq.NewTask(TypeLowStockAlert, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

func NewExportTask(req ports.ExportRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export request: %w", err)
	}
	return asynq.NewTask(TypeExportReport, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}

func NewImportTask(req ports.ImportRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import request: %w", err)
	}
	return asynq.NewTask(TypeCatalogImport, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(15*time.Minute),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewCleanupExportsTask is registered with the scheduler.
func NewCleanupExportsTask() *asynq.Task {
	return asynq.NewTask(TypeCleanupExports, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}

// NewRefreshStatsTask rebuilds the cached dashboard. Registered with the scheduler.
func NewRefreshStatsTask() *asynq.Task {
	return asynq.NewTask(TypeRefreshStats, nil, asynq.Queue(QueueLow), asynq.MaxRetry(0))
}
