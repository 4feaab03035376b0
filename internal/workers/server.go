// internal/workers/server.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/pkg/logger"
)

// Processors are the task handlers served by the worker.
type Processors struct {
	LowStock  *LowStockProcessor
	Export    *ExportProcessor
	Import    *ImportProcessor
	Cleanup   *CleanupProcessor
	Analytics *AnalyticsProcessor
}

// NewServeMux routes every task type to its processor.
func NewServeMux(p Processors, l *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(LoggingMiddleware(l))

	mux.HandleFunc(queue.TypeLowStockAlert, p.LowStock.ProcessTask)
	mux.HandleFunc(queue.TypeExportReport, p.Export.ProcessTask)
	mux.HandleFunc(queue.TypeCatalogImport, p.Import.ProcessTask)
	mux.HandleFunc(queue.TypeCleanupExports, p.Cleanup.ProcessTask)
	mux.HandleFunc(queue.TypeRefreshStats, p.Analytics.ProcessTask)
	return mux
}

// LoggingMiddleware tags the context with the task id and type and logs the outcome.
func LoggingMiddleware(l *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if id, ok := asynq.GetTaskID(ctx); ok {
				ctx = context.WithValue(ctx, logger.ContextKeyTaskID, id)
			}
			ctx = context.WithValue(ctx, logger.ContextKeyTaskType, t.Type())

			start := time.Now()
			err := next.ProcessTask(ctx, t)
			if err != nil {
				level := slog.LevelError
				if errors.Is(err, asynq.SkipRetry) {
					level = slog.LevelWarn
				}
				l.Log(ctx, level, "task failed",
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()))
				return err
			}
			l.DebugContext(ctx, "task completed", slog.Duration("duration", time.Since(start)))
			return nil
		})
	}
}

// RetryDelay backs off exponentially from one second up to ten minutes.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	const (
		baseDelay = time.Second
		maxDelay  = 10 * time.Minute
	)
	if n < 0 {
		n = 0
	}
	if n > 20 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(1<<uint(n))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// AsynqLogger adapts slog for asynq.
type AsynqLogger struct {
	logger *slog.Logger
}

// NewAsynqLogger creates the adapter.
func NewAsynqLogger(l *slog.Logger) *AsynqLogger {
	return &AsynqLogger{logger: l.With(slog.String("component", "asynq"))}
}

func (l *AsynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *AsynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *AsynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *AsynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
