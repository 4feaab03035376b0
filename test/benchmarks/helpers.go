// test/benchmarks/helpers.go
package benchmarks

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/adapters/db"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/test/helpers"
)

// ledgerFixture wires the real ledger over a throwaway database. Cache and
// queue are left out so only the ledger write path is measured.
type ledgerFixture struct {
	testDB     *helpers.TestDB
	ledger     ports.StockLedger
	catalog    ports.CatalogService
	categoryID uuid.UUID
}

func setupLedger(t *testing.T) *ledgerFixture {
	testDB := helpers.SetupTestDB(t)
	logger := helpers.TestLogger()

	products := db.NewProductRepository(testDB.Database, logger)
	movements := db.NewMovementRepository(testDB.Database, logger)
	ledger := services.NewStockLedgerService(products, movements, testDB.Database, nil, nil, logger)

	catalog := services.NewCatalogService(services.CatalogDeps{
		Products:   products,
		Categories: db.NewCategoryRepository(testDB.Database, logger),
		Suppliers:  db.NewSupplierRepository(testDB.Database, logger),
		Movements:  movements,
		Orders:     db.NewPurchaseOrderRepository(testDB.Database, logger),
		Ledger:     ledger,
		Tx:         testDB.Database,
	}, logger)

	return &ledgerFixture{
		testDB:     testDB,
		ledger:     ledger,
		catalog:    catalog,
		categoryID: helpers.SeedCategory(t, testDB.PgxPool, "Benchmarks"),
	}
}

// seedProducts inserts n products holding stock units each.
func (f *ledgerFixture) seedProducts(t *testing.T, n, stock int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = helpers.SeedProduct(t, f.testDB.PgxPool, f.categoryID, fmt.Sprintf("BENCH-%s", uuid.NewString()[:8]), stock, 0)
	}
	return ids
}
