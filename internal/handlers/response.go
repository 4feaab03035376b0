// internal/handlers/response.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/handlers/middleware"
)

const maxJSONBody = 1 << 20 // 1 MB

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response",
			slog.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string, details map[string]any) {
	respondJSON(w, logger, status, ErrorResponse{Error: message, Code: code, Details: details})
}

func respondValidation(w http.ResponseWriter, logger *slog.Logger, message string) {
	respondError(w, logger, http.StatusBadRequest, domain.CodeValidation, message, nil)
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes the response for an error returned by a service.
// Internal failures get a generic message and the cause is only logged.
func respondServiceError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		logger.ErrorContext(ctx, op+" failed", slog.String("error", err.Error()))
		respondError(w, logger, http.StatusInternalServerError, domain.CodeInternal, "internal server error", nil)
		return
	}

	status := StatusForKind(de.Kind)
	logger.DebugContext(ctx, op+" rejected",
		slog.String("code", de.Code),
		slog.Int("status", status),
		slog.String("error", err.Error()))

	// Errors wrapped with context (for example the failing line of an order)
	// keep that context in the message.
	message := de.Message
	if de != err {
		message = err.Error()
	}
	respondError(w, logger, status, de.Code, message, de.Details)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("invalid value for field %q", typeErr.Field)
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body must not exceed %d bytes", maxErr.Limit)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return fmt.Errorf("invalid request body")
		}
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s format", name)
	}
	return id, nil
}

func parsePaging(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return domain.NormalizePaging(page, limit, 20)
}

// parseDateRange reads from/to (or startDate/endDate).
func parseDateRange(r *http.Request) (domain.DateRange, error) {
	q := r.URL.Query()
	return domain.ParseDateRange(
		firstNonEmpty(q.Get("from"), q.Get("startDate")),
		firstNonEmpty(q.Get("to"), q.Get("endDate")),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// actorID is the authenticated user recorded on ledger entries.
func actorID(r *http.Request) (uuid.UUID, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	return p.UserID, true
}

func requireActor(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, ok := actorID(r)
	if !ok {
		respondError(w, logger, http.StatusUnauthorized, domain.CodeUnauthorized, "authentication required", nil)
	}
	return id, ok
}
