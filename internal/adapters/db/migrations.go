// internal/adapters/db/migrations.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationConfig holds migration configuration
type MigrationConfig struct {
	DatabaseURL      string
	Source           fs.FS
	SourceDir        string
	TableName        string
	SchemaName       string
	StatementTimeout time.Duration
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *slog.Logger
	db      *sql.DB
}

// NewMigrator opens a dedicated database/sql connection through the pgx stdlib
// driver, which golang-migrate requires.
func NewMigrator(config *MigrationConfig, logger *slog.Logger) (*Migrator, error) {
	if config == nil || config.Source == nil {
		return nil, fmt.Errorf("migration config with a source is required")
	}
	if config.TableName == "" {
		config.TableName = "schema_migrations"
	}
	if config.SchemaName == "" {
		config.SchemaName = "public"
	}
	if config.SourceDir == "" {
		config.SourceDir = "."
	}
	if config.StatementTimeout == 0 {
		config.StatementTimeout = time.Minute * 10
	}

	db, err := sql.Open("pgx", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:  config.TableName,
		SchemaName:       config.SchemaName,
		StatementTimeout: config.StatementTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	src, err := iofs.New(config.Source, config.SourceDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embedded source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return &Migrator{
		migrate: m,
		logger:  logger.With(slog.String("component", "migrator")),
		db:      db,
	}, nil
}

// Up applies all pending migrations. A dirty database is not forced: an
// operator has to inspect it and call Force.
func (m *Migrator) Up(ctx context.Context) error {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	m.logger.InfoContext(ctx, "running migrations up", slog.Uint64("from_version", uint64(version)))
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.InfoContext(ctx, "no migrations to run")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version(ctx)
	if err == nil {
		m.logger.InfoContext(ctx, "migrations completed", slog.Uint64("version", uint64(newVersion)))
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, fs.ErrNotExist) {
			m.logger.InfoContext(ctx, "no migrations to rollback")
			return nil
		}
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	m.logger.InfoContext(ctx, "migration rolled back", slog.Uint64("from_version", uint64(version)))
	return nil
}

// Force sets the version without running migrations and clears the dirty flag.
func (m *Migrator) Force(ctx context.Context, version int) error {
	m.logger.WarnContext(ctx, "forcing migration version", slog.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version: %w", err)
	}
	return nil
}

// Version returns the applied version; 0 means nothing has been applied.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source, the driver and the database handle.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	closeErr := m.db.Close()
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	if closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
		return fmt.Errorf("failed to close database: %w", closeErr)
	}
	return nil
}

// RunMigrationsWithRetry runs Up, retrying while the database is still starting.
func RunMigrationsWithRetry(ctx context.Context, config *MigrationConfig, logger *slog.Logger, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			wait := time.Duration(i) * time.Second * 2
			logger.InfoContext(ctx, "retrying migration",
				slog.Int("attempt", i+1),
				slog.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		migrator, err := NewMigrator(config, logger)
		if err != nil {
			lastErr = fmt.Errorf("failed to create migrator: %w", err)
			logger.ErrorContext(ctx, "failed to create migrator",
				slog.String("error", err.Error()),
				slog.Int("attempt", i+1))
			continue
		}

		err = migrator.Up(ctx)
		if closeErr := migrator.Close(); closeErr != nil {
			logger.WarnContext(ctx, "failed to close migrator", slog.String("error", closeErr.Error()))
		}
		if err == nil {
			return nil
		}

		lastErr = err
		logger.ErrorContext(ctx, "migration failed",
			slog.String("error", err.Error()),
			slog.Int("attempt", i+1))
	}

	return fmt.Errorf("migrations failed after %d attempts: %w", maxRetries, lastErr)
}
