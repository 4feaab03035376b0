// internal/core/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can pick a recovery action.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindConflict          ErrorKind = "conflict"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindInternal          ErrorKind = "internal"
)

// Stable error codes returned to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrValidation        = &Error{Kind: KindValidation, Code: CodeValidation}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Code: CodeInsufficientStock}
	ErrConflict          = &Error{Kind: KindConflict, Code: CodeConflict}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden, Code: CodeForbidden}
	ErrInternal          = &Error{Kind: KindInternal, Code: CodeInternal}
)

// ErrDuplicateIdempotencyKey is returned by the movement store when a key was already used.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// Error is the typed failure surfaced by services.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewValidationError builds a validation failure.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError builds a not found failure for the named resource.
func NewNotFoundError(resource string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
		Details: map[string]any{"resource": resource, "id": fmt.Sprint(id)},
	}
}

// NewConflictError builds a state conflict failure.
func NewConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewInsufficientStockError reports an outbound movement larger than the available stock.
func NewInsufficientStockError(productID fmt.Stringer, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available),
		Details: map[string]any{
			"product_id": productID.String(),
			"requested":  requested,
			"available":  available,
		},
	}
}

func NewUnauthorizedError(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func NewForbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// NewInternalError wraps a persistence or infrastructure failure.
func NewInternalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
