// internal/handlers/movements.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

// IdempotencyKeyHeader lets clients retry a movement without applying it twice.
const IdempotencyKeyHeader = "Idempotency-Key"

// MovementHandler exposes the stock ledger.
type MovementHandler struct {
	ledger ports.StockLedger
	logger *slog.Logger
}

func NewMovementHandler(ledger ports.StockLedger, logger *slog.Logger) *MovementHandler {
	return &MovementHandler{
		ledger: ledger,
		logger: logger.With(slog.String("handler", "movements")),
	}
}

// CreateMovementRequest is the body of POST /api/v1/stock-transactions.
// productId is accepted for clients of the older camelCase API.
type CreateMovementRequest struct {
	ProductID       string `json:"product_id"`
	LegacyProductID string `json:"productId"`
	Type            string `json:"type"`
	Quantity        int    `json:"quantity"`
	Reason          string `json:"reason"`
}

func (req CreateMovementRequest) toInput(actor uuid.UUID, key string) (domain.MovementInput, error) {
	productID, err := uuid.Parse(strings.TrimSpace(firstNonEmpty(req.ProductID, req.LegacyProductID)))
	if err != nil {
		return domain.MovementInput{}, domain.NewValidationError("product_id must be a valid id")
	}
	direction, err := domain.ParseDirection(req.Type)
	if err != nil {
		return domain.MovementInput{}, err
	}
	return domain.MovementInput{
		ProductID:      productID,
		Direction:      direction,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		ActorID:        actor.String(),
		IdempotencyKey: key,
	}, nil
}

// Create handles POST /api/v1/stock-transactions
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateMovementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	in, err := req.toInput(actor, strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)))
	if err != nil {
		respondServiceError(ctx, w, h.logger, "apply movement", err)
		return
	}

	result, err := h.ledger.ApplyMovement(ctx, in)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "apply movement", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	respondJSON(w, h.logger, status, result)
}

// List handles GET /api/v1/stock-transactions
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := domain.MovementFilter{}
	filter.Page, filter.Limit = parsePaging(r)

	if s := firstNonEmpty(q.Get("product_id"), q.Get("productId")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondValidation(w, h.logger, "product_id must be a valid id")
			return
		}
		filter.ProductID = &id
	}
	if s := q.Get("type"); s != "" && !strings.EqualFold(s, "all") {
		d, err := domain.ParseDirection(s)
		if err != nil {
			respondServiceError(ctx, w, h.logger, "list movements", err)
			return
		}
		filter.Direction = d
	}

	rng, err := parseDateRange(r)
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}
	filter.StartDate, filter.EndDate = rng.From, rng.To

	page, err := h.ledger.ListMovements(ctx, filter)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "list movements", err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, page)
}

// ProductHistory handles GET /api/v1/products/{id}/movements
func (h *MovementHandler) ProductHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	movements, err := h.ledger.ProductHistory(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "product history", err)
		return
	}
	if movements == nil {
		movements = []*domain.StockMovement{}
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"items": movements})
}

// Reconcile handles GET /api/v1/products/{id}/reconcile
func (h *MovementHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondValidation(w, h.logger, err.Error())
		return
	}

	rec, err := h.ledger.Reconcile(ctx, id)
	if err != nil {
		respondServiceError(ctx, w, h.logger, "reconcile", err)
		return
	}
	if !rec.Consistent {
		h.logger.WarnContext(ctx, "ledger out of balance",
			slog.String("product_id", id.String()),
			slog.Int("current_stock", rec.CurrentStock),
			slog.Int("ledger_balance", rec.LedgerBalance))
	}
	respondJSON(w, h.logger, http.StatusOK, rec)
}
