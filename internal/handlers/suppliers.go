// internal/handlers/suppliers.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// SupplierHandler handles supplier requests
type SupplierHandler struct {
	catalog ports.CatalogService
	logger  *slog.Logger
}

func NewSupplierHandler(catalog ports.CatalogService, logger *slog.Logger) *SupplierHandler {
	return &SupplierHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("handler", "suppliers")),
	}
}

type SupplierRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (req SupplierRequest) toDomain() *domain.Supplier {
	return &domain.Supplier{Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address}
}

func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	suppliers, err := h.catalog.ListSuppliers(ctx)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list suppliers", err)
		return
	}
	if suppliers == nil {
		suppliers = []*domain.Supplier{}
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"items": suppliers})
}

func (h *SupplierHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	supplier, err := h.catalog.GetSupplier(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "get supplier", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, supplier)
}

func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SupplierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	supplier, err := h.catalog.CreateSupplier(ctx, req.toDomain())
	if err != nil {
		respondServiceError(ctx, w, h.logger, "create supplier", err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, supplier)
}

func (h *SupplierHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	var req SupplierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	supplier := req.toDomain()
	supplier.ID = id
	updated, err := h.catalog.UpdateSupplier(ctx, supplier)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "update supplier", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, updated)
}
