// test/helpers/helpers.go
package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockledger/internal/adapters/db"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/handlers/middleware"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/config"
	"github.com/ammerola/stockledger/migrations"
)

// TestDB represents a test database instance
type TestDB struct {
	PgxPool  *pgxpool.Pool
	Database *db.Database
	Resource *dockertest.Resource
	Pool     *dockertest.Pool
	Config   *db.Config
}

// TestRedis represents a test Redis instance
type TestRedis struct {
	Client *redis.Client
	Server *miniredis.Miniredis
}

// TestLogger returns a test logger
func TestLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// SetupTestDB creates a PostgreSQL container for integration tests and applies
// the embedded migrations.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "Could not connect to Docker")

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test_stockledger",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "Could not start PostgreSQL container")

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Could not purge resource: %s", err)
		}
	})

	dbConfig := &db.Config{
		Host:               "localhost",
		Port:               resource.GetPort("5432/tcp"),
		User:               "test",
		Password:           "test",
		Database:           "test_stockledger",
		SSLMode:            "disable",
		MaxConnections:     10,
		MinConnections:     1,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute * 30,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     time.Second * 10,
		EnableQueryLogging: testing.Verbose(),
	}

	var database *db.Database
	err = pool.Retry(func() error {
		ctx := context.Background()
		var err error
		database, err = db.NewDatabase(ctx, dbConfig, TestLogger())
		if err != nil {
			return err
		}
		return database.Ping(ctx)
	})
	require.NoError(t, err, "Could not connect to PostgreSQL")
	t.Cleanup(database.Close)

	err = db.RunMigrationsWithRetry(context.Background(), &db.MigrationConfig{
		DatabaseURL: dbConfig.DSN(),
		Source:      migrations.FS,
	}, TestLogger(), 3)
	require.NoError(t, err, "Could not run migrations")

	return &TestDB{
		PgxPool:  database.Pool(),
		Database: database,
		Resource: resource,
		Pool:     pool,
		Config:   dbConfig,
	}
}

// SetupTestRedis starts an in-process Redis for testing
func SetupTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
	})

	return &TestRedis{
		Client: client,
		Server: mr,
	}
}

// LoadTestConfig returns a test configuration
func LoadTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "stockledger-test",
			Environment: "test",
			Version:     "test",
			LogLevel:    "debug",
			LogFormat:   "text",
			Debug:       true,
		},
		Database: config.DatabaseConfig{
			Host:               "localhost",
			Port:               "5432",
			User:               "test",
			Password:           "test",
			Name:               "test_stockledger",
			SSLMode:            "disable",
			MaxConnections:     10,
			MinConnections:     2,
			EnableQueryLogging: true,
			MigrationRetries:   3,
		},
		Redis: config.RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			PoolSize: 10,
		},
		Cache: config.CacheConfig{
			Enabled:   true,
			Namespace: "stockledger-test",
		},
		Storage: config.StorageConfig{
			Driver:          "local",
			LocalPath:       os.TempDir(),
			Bucket:          "stockledger-test",
			PresignTTL:      15 * time.Minute,
			ExportRetention: 24 * time.Hour,
		},
		Imports: config.ImportConfig{
			MaxUploadMB: 5,
		},
		Security: config.SecurityConfig{
			JWTSecret:         TestJWTSecret,
			JWTExpiration:     time.Hour,
			BcryptCost:        4,
			RateLimitRequests: 100,
			RateLimitDuration: time.Minute,
			AllowedOrigins:    []string{"*"},
			RequestIDHeader:   "X-Request-ID",
		},
		Server: config.ServerConfig{
			Host:           "localhost",
			Port:           "8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// TestJWTSecret signs tokens in tests.
const TestJWTSecret = "test-secret"

// TestVerifier returns a verifier for TestJWTSecret.
func TestVerifier(t testing.TB) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(TestJWTSecret, "", "")
	require.NoError(t, err)
	return v
}

// BearerToken issues a token for p.
func BearerToken(t testing.TB, p auth.Principal) string {
	t.Helper()
	token, err := TestVerifier(t).Issue(p, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

// TestPrincipal is an authenticated non-admin caller.
func TestPrincipal() *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Email: "operator@example.com", Role: domain.RoleUser}
}

// WithPrincipal attaches p to the request as if the auth middleware had run.
func WithPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

// CreateTestProduct builds a product with sensible defaults.
func CreateTestProduct(overrides ...func(*domain.Product)) *domain.Product {
	now := time.Now().UTC()
	p := &domain.Product{
		ID:            uuid.New(),
		Name:          "Widget",
		SKU:           "WID-" + uuid.NewString()[:8],
		Description:   "Standard widget",
		CategoryID:    uuid.New(),
		Price:         decimal.NewFromFloat(9.99),
		CurrentStock:  10,
		MinStockLevel: 2,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, override := range overrides {
		override(p)
	}
	return p
}

// CreateTestOrder builds a pending order with one line item per product.
func CreateTestOrder(productIDs ...uuid.UUID) *domain.PurchaseOrder {
	now := time.Now().UTC()
	o := &domain.PurchaseOrder{
		ID:           uuid.New(),
		SupplierID:   uuid.New(),
		Status:       domain.OrderStatusPending,
		OrderDate:    now,
		ExpectedDate: now.AddDate(0, 0, 7),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, id := range productIDs {
		o.LineItems = append(o.LineItems, domain.LineItem{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ProductID: id,
			Quantity:  5,
			UnitPrice: decimal.NewFromInt(3),
		})
	}
	o.TotalAmount = o.CalculateTotal()
	return o
}

// SeedCategory inserts a category and returns its id.
func SeedCategory(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err, "Failed to seed category")
	return id
}

// SeedSupplier inserts a supplier and returns its id.
func SeedSupplier(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO suppliers (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err, "Failed to seed supplier")
	return id
}

// SeedProduct inserts a product with the given stock directly, bypassing the ledger.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, categoryID uuid.UUID, sku string, stock, minStock int) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (name, sku, category_id, price, current_stock, min_stock_level)
		VALUES ($1, $2, $3, 1.50, $4, $5) RETURNING id`,
		"Product "+sku, sku, categoryID, stock, minStock).Scan(&id)
	require.NoError(t, err, "Failed to seed product")
	return id
}

// CurrentStock reads a product's stored stock.
func CurrentStock(t *testing.T, pool *pgxpool.Pool, productID uuid.UUID) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(),
		`SELECT current_stock FROM products WHERE id = $1`, productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}

// CountMovements counts ledger rows for a product.
func CountMovements(t *testing.T, pool *pgxpool.Pool, productID uuid.UUID) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`, productID).Scan(&n)
	require.NoError(t, err)
	return n
}

// AssertEventuallyWithTimeout asserts that a condition is met within a timeout
func AssertEventuallyWithTimeout(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Errorf("Condition not met within %v: %s", timeout, msg)
}

// TruncateAllTables truncates all tables in the test database. TRUNCATE does
// not fire the ledger's row triggers.
func TruncateAllTables(t *testing.T, db *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	tables := []string{
		"stock_movements",
		"purchase_order_items",
		"purchase_orders",
		"products",
		"suppliers",
		"categories",
		"users",
	}

	for _, table := range tables {
		_, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "Failed to truncate table: %s", table)
	}
}

// CreateTempFile creates a temporary file for testing
func CreateTempFile(t *testing.T, content []byte, extension string) string {
	t.Helper()

	file, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("test-*%s", extension))
	require.NoError(t, err, "Failed to create temp file")

	_, err = file.Write(content)
	require.NoError(t, err, "Failed to write to temp file")
	require.NoError(t, file.Close())

	return file.Name()
}
