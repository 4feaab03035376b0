package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: queue.QueueDefault, Type: task.Type()}, nil
}

func newEnqueuer(client *fakeClient) *queue.Enqueuer {
	return queue.NewEnqueuer(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnqueuer_LowStockAlert(t *testing.T) {
	client := &fakeClient{}
	alert := ports.LowStockAlert{
		ProductID:     uuid.New(),
		ProductName:   "Widget",
		SKU:           "W-1",
		CurrentStock:  2,
		MinStockLevel: 5,
		MovementID:    uuid.New(),
	}

	id, err := newEnqueuer(client).EnqueueLowStockAlert(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	require.Len(t, client.tasks, 1)
	assert.Equal(t, queue.TypeLowStockAlert, client.tasks[0].Type())

	var decoded ports.LowStockAlert
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	assert.Equal(t, alert, decoded)
}

func TestEnqueuer_Export(t *testing.T) {
	client := &fakeClient{}
	req := ports.ExportRequest{
		Dataset:   domain.ExportMovements,
		Format:    domain.FormatXLSX,
		ObjectKey: "exports/2026/01/01/movements.xlsx",
	}

	_, err := newEnqueuer(client).EnqueueExport(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, client.tasks, 1)
	assert.Equal(t, queue.TypeExportReport, client.tasks[0].Type())

	var decoded ports.ExportRequest
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	assert.Equal(t, req, decoded)
}

func TestEnqueuer_ImportPropagatesErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("redis down")}

	_, err := newEnqueuer(client).EnqueueImport(context.Background(), ports.ImportRequest{ObjectKey: "imports/a.xlsx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), queue.TypeCatalogImport)
	assert.Contains(t, err.Error(), "redis down")
}
