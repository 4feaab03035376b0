// internal/handlers/import.go
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ImportPrefix is the object storage prefix of uploaded catalog spreadsheets.
const ImportPrefix = "imports"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportHandler accepts catalog spreadsheets and queues them for the worker.
type ImportHandler struct {
	storage     ports.ObjectStorage
	tasks       ports.TaskEnqueuer
	logger      *slog.Logger
	maxFileSize int64
	now         func() time.Time
}

// NewImportHandler creates a new import handler
func NewImportHandler(storage ports.ObjectStorage, tasks ports.TaskEnqueuer, logger *slog.Logger, maxFileSize int64) *ImportHandler {
	return &ImportHandler{
		storage:     storage,
		tasks:       tasks,
		logger:      logger.With(slog.String("handler", "import")),
		maxFileSize: maxFileSize,
		now:         time.Now,
	}
}

// ImportAccepted is returned once an upload is queued.
type ImportAccepted struct {
	TaskID    string `json:"task_id"`
	ObjectKey string `json:"object_key"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// ImportProducts handles POST /api/v1/import/products
func (h *ImportHandler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	tooLarge := func() {
		respondError(w, h.logger, http.StatusRequestEntityTooLarge, domain.CodeValidation,
			fmt.Sprintf("upload exceeds %d bytes", h.maxFileSize), nil)
	}
	if r.ContentLength > h.maxFileSize {
		tooLarge()
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge()
			return
		}
		respondValidation(w, h.logger, "failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondValidation(w, h.logger, "file is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		respondValidation(w, h.logger, "only .xlsx files are allowed")
		return
	}

	now := h.now().UTC()
	key := path.Join(ImportPrefix, now.Format("2006/01/02"),
		fmt.Sprintf("%s-%s", uuid.NewString()[:8], path.Base(filepath.ToSlash(header.Filename))))

	if _, err := h.storage.Upload(ctx, key, file, xlsxContentType); err != nil {
		h.logger.ErrorContext(ctx, "failed to store upload",
			slog.String("object_key", key),
			slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, domain.CodeInternal, "failed to store upload", nil)
		return
	}

	taskID, err := h.tasks.EnqueueImport(ctx, ports.ImportRequest{
		ObjectKey:   key,
		Filename:    header.Filename,
		RequestedBy: actor.String(),
	})
	if err != nil {
		if delErr := h.storage.Delete(ctx, key); delErr != nil {
			h.logger.WarnContext(ctx, "failed to remove orphaned upload",
				slog.String("object_key", key),
				slog.String("error", delErr.Error()))
		}
		h.logger.ErrorContext(ctx, "failed to enqueue import", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, domain.CodeInternal, "failed to queue import", nil)
		return
	}

	h.logger.InfoContext(ctx, "catalog import queued",
		slog.String("task_id", taskID),
		slog.String("object_key", key),
		slog.Int64("size", header.Size))

	respondJSON(w, h.logger, http.StatusAccepted, ImportAccepted{
		TaskID:    taskID,
		ObjectKey: key,
		Status:    "queued",
		Message:   "catalog import has been queued for processing",
	})
}
