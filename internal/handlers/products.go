// internal/handlers/products.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// ProductHandler handles catalog product requests
type ProductHandler struct {
	catalog ports.CatalogService
	logger  *slog.Logger
}

func NewProductHandler(catalog ports.CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("handler", "products")),
	}
}

// ProductRequest is the body of product create and update. CurrentStock is
// honoured only on create, as the opening balance.
type ProductRequest struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Description   string          `json:"description"`
	CategoryID    string          `json:"category_id"`
	Price         decimal.Decimal `json:"price"`
	CurrentStock  int             `json:"current_stock"`
	MinStockLevel int             `json:"min_stock_level"`
}

func (req ProductRequest) toDomain() (*domain.Product, error) {
	categoryID, err := uuid.Parse(strings.TrimSpace(req.CategoryID))
	if err != nil {
		return nil, domain.NewValidationError("category_id must be a valid id")
	}
	return &domain.Product{
		Name:          req.Name,
		SKU:           req.SKU,
		Description:   req.Description,
		CategoryID:    categoryID,
		Price:         req.Price,
		CurrentStock:  req.CurrentStock,
		MinStockLevel: req.MinStockLevel,
	}, nil
}

// List handles GET /api/v1/products and GET /api/v1/stock
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := ports.ProductFilter{
		Search:      strings.TrimSpace(q.Get("search")),
		StockFilter: domain.StockFilter(strings.ToLower(firstNonEmpty(q.Get("stock_filter"), q.Get("stockFilter"), "all"))),
	}
	filter.Page, filter.Limit = parsePaging(r)

	if !filter.StockFilter.IsValid() {
		respondValidation(w, h.logger, "stock_filter must be all, low or out")
		return
	}
	if s := firstNonEmpty(q.Get("category_id"), q.Get("categoryId")); s != "" && s != "all" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondValidation(w, h.logger, "category_id must be a valid id")
			return
		}
		filter.CategoryID = &id
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list products", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, page)
}

// Get handles GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "get product", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, product)
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	product, err := req.toDomain()
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create product", err)
		return
	}

	created, err := h.catalog.CreateProduct(ctx, product, actor.String())
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create product", err)
		return
	}

	h.logger.InfoContext(ctx, "product created",
		slog.String("product_id", created.ID.String()),
		slog.String("sku", created.SKU))
	respondJSON(w, h.logger, http.StatusCreated, created)
}

// Update handles PUT /api/v1/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	var req ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	product, err := req.toDomain()
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update product", err)
		return
	}
	product.ID = id

	updated, err := h.catalog.UpdateProduct(ctx, product)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update product", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	if err := h.catalog.DeleteProduct(ctx, id); err != nil {
		respondServiceError(ctx, w, h.logger, "delete product", err)
		return
	}

	h.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}
