// Package bootstrap opens the shared infrastructure and assembles the
// services used by the api, worker and seeder binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockledger/internal/adapters/db"
	redis_a "github.com/ammerola/stockledger/internal/adapters/redis_adapter"
	"github.com/ammerola/stockledger/internal/adapters/storage"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/config"
	"github.com/ammerola/stockledger/migrations"
)

// DatabaseConfig maps application settings onto the pool configuration.
// maxConns overrides the configured pool size when positive.
func DatabaseConfig(cfg *config.Config, maxConns int32) *db.Config {
	c := &db.Config{
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		User:               cfg.Database.User,
		Password:           cfg.Database.Password,
		Database:           cfg.Database.Name,
		SSLMode:            cfg.Database.SSLMode,
		MaxConnections:     cfg.Database.MaxConnections,
		MinConnections:     cfg.Database.MinConnections,
		MaxConnLifetime:    cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:    cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod:  cfg.Database.HealthCheckPeriod,
		ConnectTimeout:     cfg.Database.ConnectTimeout,
		EnableQueryLogging: cfg.Database.EnableQueryLogging,
	}
	if maxConns > 0 {
		c.MaxConnections = maxConns
		if c.MinConnections > maxConns {
			c.MinConnections = maxConns
		}
	}
	return c
}

// OpenDatabase connects the pgx pool.
func OpenDatabase(ctx context.Context, cfg *config.Config, maxConns int32, logger *slog.Logger) (*db.Database, error) {
	logger.Info("connecting to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Name))

	database, err := db.NewDatabase(ctx, DatabaseConfig(cfg, maxConns), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

// MigrationConfig points golang-migrate at the embedded schema.
func MigrationConfig(cfg *config.Config) *db.MigrationConfig {
	return &db.MigrationConfig{
		DatabaseURL: cfg.GetDatabaseURL(),
		Source:      migrations.FS,
		TableName:   "schema_migrations",
		SchemaName:  "public",
	}
}

// Migrate applies pending migrations, retrying while the database starts.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("running database migrations")
	retries := cfg.Database.MigrationRetries
	if retries <= 0 {
		retries = 1
	}
	return db.RunMigrationsWithRetry(ctx, MigrationConfig(cfg), logger, retries)
}

// OpenRedis connects the cache client.
func OpenRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	logger.Info("connecting to Redis", slog.String("addr", cfg.Redis.Addr()))

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Cache returns the redis cache, or a nil interface when caching is disabled.
func Cache(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) ports.CacheRepository {
	if !cfg.Cache.Enabled || client == nil {
		return nil
	}
	return redis_a.NewCache(client, cfg.Cache.Namespace, logger)
}

// AsynqRedisOpt is the connection shared by the asynq client, inspector and server.
func AsynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}
}

// OpenStorage selects S3 or the local filesystem.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.ObjectStorage, error) {
	switch cfg.Storage.Driver {
	case "local":
		local, err := storage.NewLocalStorage(cfg.Storage.LocalPath, logger)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3", "":
		s3, err := storage.NewS3Storage(ctx, &storage.S3Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			CreateBucket:    cfg.Storage.CreateBucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Services holds the application services over one database.
type Services struct {
	Ledger  *services.StockLedgerService
	Orders  *services.PurchaseOrderService
	Catalog *services.CatalogService
	Users   *services.UserService
	Reports *services.ReportService
}

// NewServices wires repositories into services. cache and tasks may be nil.
func NewServices(cfg *config.Config, database *db.Database, cache ports.CacheRepository, tasks ports.TaskEnqueuer, logger *slog.Logger) *Services {
	products := db.NewProductRepository(database, logger)
	movements := db.NewMovementRepository(database, logger)
	orders := db.NewPurchaseOrderRepository(database, logger)
	categories := db.NewCategoryRepository(database, logger)
	suppliers := db.NewSupplierRepository(database, logger)
	users := db.NewUserRepository(database, logger)
	reports := db.NewReportRepository(database, logger)

	ledger := services.NewStockLedgerService(products, movements, database, cache, tasks, logger)

	return &Services{
		Ledger: ledger,
		Orders: services.NewPurchaseOrderService(orders, suppliers, products, ledger, database, cache, logger),
		Catalog: services.NewCatalogService(services.CatalogDeps{
			Products:   products,
			Categories: categories,
			Suppliers:  suppliers,
			Movements:  movements,
			Orders:     orders,
			Ledger:     ledger,
			Tx:         database,
			Cache:      cache,
		}, logger),
		Users:   services.NewUserService(users, auth.NewBcryptHasher(cfg.Security.BcryptCost), logger),
		Reports: services.NewReportService(reports, products, cache, tasks, logger),
	}
}
