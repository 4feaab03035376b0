// internal/workers/export_processor.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ExportProcessor renders report:export tasks into object storage.
type ExportProcessor struct {
	reports ports.ReportService
	storage ports.ObjectStorage
	logger  *slog.Logger
}

// NewExportProcessor creates a new export processor
func NewExportProcessor(reports ports.ReportService, storage ports.ObjectStorage, logger *slog.Logger) *ExportProcessor {
	return &ExportProcessor{
		reports: reports,
		storage: storage,
		logger:  logger.With(slog.String("processor", "export")),
	}
}

// ProcessTask writes the requested dataset to req.ObjectKey. A retry
// overwrites the same key, so a partially failed attempt leaves no duplicate.
func (p *ExportProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var req ports.ExportRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if req.ObjectKey == "" || !req.Dataset.IsValid() || !req.Format.IsValid() {
		return fmt.Errorf("invalid export request %s/%s: %w", req.Dataset, req.Format, asynq.SkipRetry)
	}

	dateRange, err := domain.ParseDateRange(req.From, req.To)
	if err != nil {
		return fmt.Errorf("invalid export range: %v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	p.logger.InfoContext(ctx, "rendering export",
		slog.String("dataset", string(req.Dataset)),
		slog.String("format", string(req.Format)),
		slog.String("requested_by", req.RequestedBy))

	var buf bytes.Buffer
	if err := p.reports.Export(ctx, &buf, req.Dataset, req.Format, dateRange); err != nil {
		return fmt.Errorf("failed to render export: %w", err)
	}
	size := buf.Len()

	location, err := p.storage.Upload(ctx, req.ObjectKey, &buf, req.Format.ContentType())
	if err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}

	p.logger.InfoContext(ctx, "export stored",
		slog.String("object_key", req.ObjectKey),
		slog.String("location", location),
		slog.Int("bytes", size),
		slog.Duration("duration", time.Since(start)))
	return nil
}
