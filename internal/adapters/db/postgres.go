// internal/adapters/db/postgres.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// Config holds database configuration
type Config struct {
	Host               string
	Port               string
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	EnableQueryLogging bool
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		Host:               "localhost",
		Port:               "5432",
		User:               "stockledger",
		Password:           "stockledger_dev",
		Database:           "stockledger",
		SSLMode:            "disable",
		MaxConnections:     25,
		MinConnections:     5,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute * 30,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     time.Second * 10,
		EnableQueryLogging: false,
	}
}

// DSN returns the connection string in URL form, as golang-migrate expects it.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Database wraps pgxpool with transaction helpers.
type Database struct {
	pool   *pgxpool.Pool
	config *Config
	logger *slog.Logger
}

var (
	_ ports.Transactor    = (*Database)(nil)
	_ ports.HealthChecker = (*Database)(nil)
)

// NewDatabase creates a new database connection pool
func NewDatabase(ctx context.Context, config *Config, logger *slog.Logger) (*Database, error) {
	if config == nil {
		config = DefaultConfig()
	}

	poolConfig, err := buildPoolConfig(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Database{
		pool:   pool,
		config: config,
		logger: logger.With(slog.String("component", "database")),
	}

	db.logger.Info("database connection established",
		slog.String("host", config.Host),
		slog.String("database", config.Database),
		slog.Int("max_connections", int(config.MaxConnections)),
	)

	return db, nil
}

func buildPoolConfig(config *Config, logger *slog.Logger) (*pgxpool.Config, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	poolConfig.MaxConns = config.MaxConnections
	poolConfig.MinConns = config.MinConnections
	poolConfig.MaxConnLifetime = config.MaxConnLifetime
	poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = config.HealthCheckPeriod

	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	poolConfig.ConnConfig.StatementCacheCapacity = 512

	if config.EnableQueryLogging {
		poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   newPgxLogger(logger),
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	return poolConfig, nil
}

// Pool returns the underlying pgxpool.Pool
func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes all database connections
func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info("database connections closed")
}

// Ping verifies database connectivity
func (db *Database) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Health returns pool statistics and the result of a trivial query.
func (db *Database) Health(ctx context.Context) map[string]interface{} {
	stats := db.pool.Stat()
	health := map[string]interface{}{
		"status":               "healthy",
		"total_connections":    stats.TotalConns(),
		"idle_connections":     stats.IdleConns(),
		"acquired_connections": stats.AcquiredConns(),
		"max_connections":      stats.MaxConns(),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()

	var result int
	if err := db.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
	}

	return health
}

// Transaction executes fn within a read committed transaction.
func (db *Database) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.TransactionWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// TransactionWithOptions executes fn within a transaction with custom options.
// The transaction is rolled back when fn returns an error or panics.
func (db *Database) TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.ErrorContext(ctx, "transaction rollback failed",
				slog.String("error", rbErr.Error()))
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Query executes a query that returns rows
func (db *Database) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row
func (db *Database) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a query that doesn't return rows
func (db *Database) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// pgxLogger adapts slog for pgx logging
type pgxLogger struct {
	logger *slog.Logger
}

func newPgxLogger(logger *slog.Logger) *pgxLogger {
	return &pgxLogger{
		logger: logger.With(slog.String("component", "pgx")),
	}
}

func (l *pgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	attrs := make([]slog.Attr, 0, len(data))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}

	switch level {
	case tracelog.LogLevelError:
		l.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	case tracelog.LogLevelWarn:
		l.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
	case tracelog.LogLevelInfo:
		l.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
	default:
		l.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
	}
}

// Postgres error codes translated by the repositories.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNumericOutOfRange   = "22003"
)

// pgError returns the SQLSTATE and constraint of err, or empty strings when err
// did not come from the server.
func pgError(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// scanAll collects rows with scan, closing rows when done.
func scanAll[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer rows.Close()

	var results []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// querier is satisfied by *Database, *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
