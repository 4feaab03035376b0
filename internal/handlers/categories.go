// internal/handlers/categories.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// CategoryHandler handles category requests
type CategoryHandler struct {
	catalog ports.CatalogService
	logger  *slog.Logger
}

func NewCategoryHandler(catalog ports.CatalogService, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("handler", "categories")),
	}
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list categories", err)
		return
	}
	if categories == nil {
		categories = []*domain.Category{}
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"items": categories})
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	category, err := h.catalog.GetCategory(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "get category", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, category)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	category, err := h.catalog.CreateCategory(ctx, &domain.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create category", err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, category)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, &domain.Category{ID: id, Name: req.Name, Description: req.Description})
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update category", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, category)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	if err := h.catalog.DeleteCategory(ctx, id); err != nil {
		respondServiceError(ctx, w, h.logger, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
