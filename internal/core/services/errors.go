// internal/core/services/errors.go
package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ammerola/stockledger/internal/core/domain"
)

func classifyError(ctx context.Context, logger *slog.Logger, op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewInternalError("request cancelled during "+op, err)
	}
	logger.ErrorContext(ctx, "operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return domain.NewInternalError("failed to "+op, err)
}
