// internal/handlers/export.go
package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ExportHandler renders datasets for download or hands them to the worker.
type ExportHandler struct {
	reports ports.ReportService
	logger  *slog.Logger
	now     func() time.Time
}

// NewExportHandler creates a new export handler
func NewExportHandler(reports ports.ReportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		reports: reports,
		logger:  logger.With(slog.String("handler", "export")),
		now:     time.Now,
	}
}

// ExportAccepted is returned for background exports.
type ExportAccepted struct {
	TaskID    string `json:"task_id"`
	ObjectKey string `json:"object_key"`
	Status    string `json:"status"`
}

func (h *ExportHandler) parse(r *http.Request) (domain.ExportDataset, domain.ExportFormat, error) {
	dataset := domain.ExportDataset(strings.ToLower(r.PathValue("dataset")))
	if !dataset.IsValid() {
		return "", "", fmt.Errorf("unknown export dataset %q", r.PathValue("dataset"))
	}
	format := domain.ExportFormat(strings.ToLower(firstNonEmpty(r.URL.Query().Get("format"), string(domain.FormatCSV))))
	if !format.IsValid() {
		return "", "", fmt.Errorf("format must be csv or xlsx")
	}
	return dataset, format, nil
}

// Export handles GET /api/v1/export/{dataset}?format=csv|xlsx
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataset, format, err := h.parse(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	rng, err := parseDateRange(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	// Render fully before writing so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.reports.Export(ctx, &buf, dataset, format, rng); err != nil {
		respondServiceError(ctx, w, h.logger, "export", err)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", dataset, h.now().UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(ctx, "failed to write export", slog.String("error", err.Error()))
	}
}

// RequestExport handles POST /api/v1/export/{dataset}?format=csv|xlsx
func (h *ExportHandler) RequestExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataset, format, err := h.parse(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	q := r.URL.Query()
	rng, err := parseDateRange(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	req := ports.ExportRequest{Dataset: dataset, Format: format}
	if rng.From != nil {
		req.From = firstNonEmpty(q.Get("from"), q.Get("startDate"))
	}
	if rng.To != nil {
		req.To = firstNonEmpty(q.Get("to"), q.Get("endDate"))
	}
	if actor, ok := actorID(r); ok {
		req.RequestedBy = actor.String()
	}

	taskID, key, err := h.reports.RequestExport(ctx, req)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "request export", err)
		return
	}
	respondJSON(w, h.logger, http.StatusAccepted, ExportAccepted{TaskID: taskID, ObjectKey: key, Status: "queued"})
}
