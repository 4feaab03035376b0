// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockledger/internal/adapters/db"
	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/bootstrap"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/config"
	"github.com/ammerola/stockledger/internal/pkg/logger"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	slogger := logger.SetupLogger("info", "json").Logger

	slogger.Info("starting stockledger api",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion),
	)

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat).Logger
	slogger.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.App.LogLevel),
	)

	ctx := context.Background()

	if cfg.Database.MigrateOnStart {
		if err := bootstrap.Migrate(ctx, cfg, slogger); err != nil {
			slogger.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	deps, err := initializeDependencies(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("failed to initialize dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer deps.cleanup()

	server := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        deps.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(slogger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		slogger.Info("starting HTTP server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("server error", slog.String("error", err.Error()))
		}
	case sig := <-shutdown:
		slogger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
			server.Close()
		}
		slogger.Info("server shutdown complete")
	}
}

// dependencies holds everything closed on shutdown plus the router.
type dependencies struct {
	database       *db.Database
	redisClient    *redis.Client
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector
	router         http.Handler
}

func (d *dependencies) cleanup() {
	if d.asynqInspector != nil {
		d.asynqInspector.Close()
	}
	if d.asynqClient != nil {
		d.asynqClient.Close()
	}
	if d.redisClient != nil {
		d.redisClient.Close()
	}
	if d.database != nil {
		d.database.Close()
	}
}

func initializeDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	database, err := bootstrap.OpenDatabase(ctx, cfg, 0, logger)
	if err != nil {
		return nil, err
	}
	deps.database = database

	var (
		cache  ports.CacheRepository
		pinger handlers.Pinger
	)
	if cfg.Cache.Enabled {
		client, err := bootstrap.OpenRedis(ctx, cfg, logger)
		if err != nil {
			deps.cleanup()
			return nil, err
		}
		deps.redisClient = client
		cache = bootstrap.Cache(cfg, client, logger)
		pinger = cache
	}

	var (
		tasks     ports.TaskEnqueuer
		inspector handlers.QueueInspector
	)
	if cfg.Asynq.Enabled {
		logger.Info("initializing Asynq client")
		opt := bootstrap.AsynqRedisOpt(cfg)
		deps.asynqClient = asynq.NewClient(opt)
		deps.asynqInspector = asynq.NewInspector(opt)
		tasks = queue.NewEnqueuer(deps.asynqClient, logger)
		inspector = deps.asynqInspector
	}

	svc := bootstrap.NewServices(cfg, database, cache, tasks, logger)

	verifier, err := auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience)
	if err != nil {
		deps.cleanup()
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	h := handlers.Handlers{
		Health:         handlers.NewHealthHandler(database, pinger, inspector, Version, cfg.App.Environment, logger),
		Movements:      handlers.NewMovementHandler(svc.Ledger, logger),
		Products:       handlers.NewProductHandler(svc.Catalog, logger),
		Categories:     handlers.NewCategoryHandler(svc.Catalog, logger),
		Suppliers:      handlers.NewSupplierHandler(svc.Catalog, logger),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(svc.Orders, logger),
		Dashboard:      handlers.NewDashboardHandler(svc.Reports, logger),
		Export:         handlers.NewExportHandler(svc.Reports, logger),
		Users:          handlers.NewUserHandler(svc.Users, logger),
	}

	if tasks != nil {
		objects, err := bootstrap.OpenStorage(ctx, cfg, logger)
		if err != nil {
			deps.cleanup()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		maxFileSize := int64(cfg.Imports.MaxUploadMB) * 1024 * 1024
		h.Import = handlers.NewImportHandler(objects, tasks, logger, maxFileSize)
	} else {
		logger.Warn("asynq disabled, catalog imports and background exports are unavailable")
	}

	deps.router = handlers.NewRouter(h, handlers.RouterConfig{
		Verifier:          verifier,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		SecureHeaders:     cfg.Security.SecureHeaders,
		RequestIDHeader:   cfg.Security.RequestIDHeader,
		RateLimitRequests: cfg.Security.RateLimitRequests,
		RateLimitDuration: cfg.Security.RateLimitDuration,
		RequestTimeout:    cfg.Server.RequestTimeout,
	}, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}
