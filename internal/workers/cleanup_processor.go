// internal/workers/cleanup_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// CleanupProcessor handles cleanup tasks
type CleanupProcessor struct {
	storage   ports.ObjectStorage
	retention time.Duration
	prefixes  []string
	logger    *slog.Logger
	now       func() time.Time
}

// NewCleanupProcessor removes objects under prefixes once they are older than retention.
func NewCleanupProcessor(storage ports.ObjectStorage, retention time.Duration, logger *slog.Logger, prefixes ...string) *CleanupProcessor {
	return &CleanupProcessor{
		storage:   storage,
		retention: retention,
		prefixes:  prefixes,
		logger:    logger.With(slog.String("processor", "cleanup")),
		now:       time.Now,
	}
}

// ProcessTask handles cleanup:exports. A failed delete is logged and the
// object is retried on the next scheduled run.
func (p *CleanupProcessor) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if p.retention <= 0 {
		p.logger.InfoContext(ctx, "retention disabled, nothing to clean")
		return nil
	}

	cutoff := p.now().Add(-p.retention)
	var deleted, failed int

	for _, prefix := range p.prefixes {
		objects, err := p.storage.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", prefix, err)
		}

		for _, obj := range objects {
			if !obj.LastModified.Before(cutoff) {
				continue
			}
			if err := p.storage.Delete(ctx, obj.Key); err != nil {
				failed++
				p.logger.WarnContext(ctx, "failed to delete object",
					slog.String("object_key", obj.Key),
					slog.String("error", err.Error()))
				continue
			}
			deleted++
		}
	}

	p.logger.InfoContext(ctx, "cleanup completed",
		slog.Int("deleted", deleted),
		slog.Int("failed", failed),
		slog.Time("cutoff", cutoff))
	return nil
}
