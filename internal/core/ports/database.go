// internal/core/ports/database.go
package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor runs fn inside a database transaction. Returning an error from fn
// rolls the transaction back; otherwise it is committed.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
	TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error
}

// HealthChecker reports datastore health for the readiness probe.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) map[string]interface{}
}
