package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// TaskClient is the part of *asynq.Client the enqueuer uses.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer implements ports.TaskEnqueuer on asynq.
type Enqueuer struct {
	client TaskClient
	logger *slog.Logger
}

var _ ports.TaskEnqueuer = (*Enqueuer)(nil)

func NewEnqueuer(client TaskClient, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		client: client,
		logger: logger.With(slog.String("component", "enqueuer")),
	}
}

func (e *Enqueuer) EnqueueLowStockAlert(ctx context.Context, alert ports.LowStockAlert) (string, error) {
	task, err := NewLowStockAlertTask(alert)
	if err != nil {
		return "", err
	}
	return e.enqueue(ctx, task)
}

func (e *Enqueuer) EnqueueExport(ctx context.Context, req ports.ExportRequest) (string, error) {
	task, err := NewExportTask(req)
	if err != nil {
		return "", err
	}
	return e.enqueue(ctx, task)
}

func (e *Enqueuer) EnqueueImport(ctx context.Context, req ports.ImportRequest) (string, error) {
	task, err := NewImportTask(req)
	if err != nil {
		return "", err
	}
	return e.enqueue(ctx, task)
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}

	e.logger.DebugContext(ctx, "task enqueued",
		slog.String("type", task.Type()),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue))
	return info.ID, nil
}
