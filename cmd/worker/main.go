// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/bootstrap"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/internal/pkg/config"
	"github.com/ammerola/stockledger/internal/pkg/logger"
	"github.com/ammerola/stockledger/internal/workers"
)

func main() {
	slogger := logger.SetupLogger("info", "json").Logger

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat).Logger
	slogger.Info("starting worker",
		slog.String("environment", cfg.App.Environment),
		slog.String("redis_addr", cfg.Asynq.RedisAddr))

	ctx := context.Background()

	// Fewer connections than the api: tasks run at most Concurrency at a time.
	database, err := bootstrap.OpenDatabase(ctx, cfg, 10, slogger)
	if err != nil {
		slogger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	var cache ports.CacheRepository
	if cfg.Cache.Enabled {
		client, err := bootstrap.OpenRedis(ctx, cfg, slogger)
		if err != nil {
			slogger.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer client.Close()
		cache = bootstrap.Cache(cfg, client, slogger)
	}

	objects, err := bootstrap.OpenStorage(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisOpt := bootstrap.AsynqRedisOpt(cfg)

	// Imported products can fall below their minimum, so the worker enqueues alerts too.
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	svc := bootstrap.NewServices(cfg, database, cache, queue.NewEnqueuer(client, slogger), slogger)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Asynq.Concurrency,
		Queues:          cfg.Asynq.Queues,
		StrictPriority:  cfg.Asynq.StrictPriority,
		ErrorHandler:    asynq.ErrorHandlerFunc(handleError(slogger)),
		RetryDelayFunc:  workers.RetryDelay,
		ShutdownTimeout: cfg.Asynq.ShutdownTimeout,
		HealthCheckFunc: healthCheck(slogger),
		Logger:          workers.NewAsynqLogger(slogger),
	})

	mux := workers.NewServeMux(workers.Processors{
		LowStock:  workers.NewLowStockProcessor(svc.Catalog, workers.NewLogNotifier(slogger), slogger),
		Export:    workers.NewExportProcessor(svc.Reports, objects, slogger),
		Import:    workers.NewImportProcessor(svc.Catalog, objects, slogger),
		Cleanup:   workers.NewCleanupProcessor(objects, cfg.Storage.ExportRetention, slogger, services.ExportPrefix, handlers.ImportPrefix),
		Analytics: workers.NewAnalyticsProcessor(svc.Reports, slogger),
	}, slogger)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: workers.NewAsynqLogger(slogger),
	})
	if err := registerSchedules(scheduler, cfg, slogger); err != nil {
		slogger.Error("failed to register schedules", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Run(mux); err != nil {
			slogger.Error("failed to run worker server", slog.String("error", err.Error()))
			shutdown <- syscall.SIGTERM
		}
	}()
	go func() {
		if err := scheduler.Run(); err != nil {
			slogger.Error("failed to run scheduler", slog.String("error", err.Error()))
			shutdown <- syscall.SIGTERM
		}
	}()

	slogger.Info("worker started successfully",
		slog.Int("concurrency", cfg.Asynq.Concurrency),
		slog.Any("queues", cfg.Asynq.Queues))

	sig := <-shutdown
	slogger.Info("shutdown signal received", slog.String("signal", sig.String()))

	scheduler.Shutdown()
	srv.Shutdown()
	slogger.Info("worker shutdown complete")
}

func registerSchedules(scheduler *asynq.Scheduler, cfg *config.Config, logger *slog.Logger) error {
	schedules := []struct {
		spec string
		task *asynq.Task
	}{
		{cfg.Asynq.CleanupSchedule, queue.NewCleanupExportsTask()},
		{cfg.Asynq.RefreshSchedule, queue.NewRefreshStatsTask()},
	}
	for _, s := range schedules {
		if s.spec == "" {
			continue
		}
		id, err := scheduler.Register(s.spec, s.task)
		if err != nil {
			return err
		}
		logger.Info("periodic task registered",
			slog.String("type", s.task.Type()),
			slog.String("schedule", s.spec),
			slog.String("entry_id", id))
	}
	return nil
}

func handleError(logger *slog.Logger) func(ctx context.Context, task *asynq.Task, err error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			logger.ErrorContext(ctx, "task retries exhausted",
				slog.String("type", task.Type()),
				slog.String("payload", string(task.Payload())),
				slog.String("error", err.Error()))
		}
	}
}

func healthCheck(logger *slog.Logger) func(error) {
	return func(err error) {
		if err != nil {
			logger.Error("worker health check failed", slog.String("error", err.Error()))
		}
	}
}
