//go:build integration
// +build integration

package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/ammerola/stockledger/internal/adapters/db"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/test/helpers"
)

type StockLedgerSuite struct {
	suite.Suite
	testDB *helpers.TestDB
	ctx    context.Context

	products  *db.ProductRepository
	movements *db.MovementRepository
	orders    *db.PurchaseOrderRepository
	suppliers *db.SupplierRepository

	ledger   *services.StockLedgerService
	receiver *services.PurchaseOrderService

	categoryID uuid.UUID
	supplierID uuid.UUID
}

func TestStockLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StockLedgerSuite))
}

func (s *StockLedgerSuite) SetupSuite() {
	s.testDB = helpers.SetupTestDB(s.T())
	s.ctx = context.Background()

	logger := helpers.TestLogger()
	database := s.testDB.Database
	s.products = db.NewProductRepository(database, logger)
	s.movements = db.NewMovementRepository(database, logger)
	s.orders = db.NewPurchaseOrderRepository(database, logger)
	s.suppliers = db.NewSupplierRepository(database, logger)

	s.ledger = services.NewStockLedgerService(s.products, s.movements, database, nil, nil, logger)
	s.receiver = s.newReceiver(s.ledger)
}

func (s *StockLedgerSuite) SetupTest() {
	helpers.TruncateAllTables(s.T(), s.testDB.PgxPool)
	s.categoryID = helpers.SeedCategory(s.T(), s.testDB.PgxPool, "Hardware")
	s.supplierID = helpers.SeedSupplier(s.T(), s.testDB.PgxPool, "Northwind")
}

func (s *StockLedgerSuite) newReceiver(ledger ports.StockLedger) *services.PurchaseOrderService {
	return services.NewPurchaseOrderService(s.orders, s.suppliers, s.products, ledger, s.testDB.Database, nil, helpers.TestLogger())
}

// stockedProduct creates a product at zero and books the opening stock through the ledger.
func (s *StockLedgerSuite) stockedProduct(sku string, stock int) uuid.UUID {
	id := helpers.SeedProduct(s.T(), s.testDB.PgxPool, s.categoryID, sku, 0, 2)
	if stock > 0 {
		s.apply(id, domain.DirectionIn, stock, domain.OpeningBalanceReason)
	}
	return id
}

func (s *StockLedgerSuite) apply(id uuid.UUID, dir domain.Direction, qty int, reason string) *domain.MovementResult {
	res, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: id,
		Direction: dir,
		Quantity:  qty,
		Reason:    reason,
		ActorID:   "tester",
	})
	s.Require().NoError(err)
	return res
}

func (s *StockLedgerSuite) createOrder(quantities map[uuid.UUID]int, order ...uuid.UUID) *domain.PurchaseOrder {
	items := make([]domain.LineItem, 0, len(order))
	for _, id := range order {
		items = append(items, domain.LineItem{ProductID: id, Quantity: quantities[id], UnitPrice: decimal.NewFromInt(2)})
	}
	o, err := s.receiver.Create(s.ctx, domain.CreateOrderInput{
		SupplierID:   s.supplierID,
		ExpectedDate: time.Now().AddDate(0, 0, 3),
		Items:        items,
	})
	s.Require().NoError(err)
	return o
}

func (s *StockLedgerSuite) stock(id uuid.UUID) int {
	return helpers.CurrentStock(s.T(), s.testDB.PgxPool, id)
}

func (s *StockLedgerSuite) assertBalanced(id uuid.UUID) {
	rec, err := s.ledger.Reconcile(s.ctx, id)
	s.Require().NoError(err)
	s.True(rec.Consistent, "stock %d, ledger %d", rec.CurrentStock, rec.LedgerBalance)
}

func (s *StockLedgerSuite) TestConcreteScenario() {
	p := s.stockedProduct("P-1", 10)

	res := s.apply(p, domain.DirectionOut, 4, "sale")
	s.Equal(6, res.Product.CurrentStock)

	_, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: p, Direction: domain.DirectionOut, Quantity: 10, Reason: "sale",
	})
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(6, s.stock(p))

	order := s.createOrder(map[uuid.UUID]int{p: 5}, p)
	received, err := s.receiver.Receive(s.ctx, order.ID, "tester")
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReceived, received.Status)
	s.Equal(11, s.stock(p))

	_, err = s.receiver.Receive(s.ctx, order.ID, "tester")
	s.ErrorIs(err, domain.ErrConflict)
	s.Equal(11, s.stock(p))

	s.assertBalanced(p)
}

func (s *StockLedgerSuite) TestRejectedMovementsLeaveNoTrace() {
	p := s.stockedProduct("P-2", 3)
	before := helpers.CountMovements(s.T(), s.testDB.PgxPool, p)

	_, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: p, Direction: domain.DirectionOut, Quantity: 4, Reason: "sale",
	})
	s.ErrorIs(err, domain.ErrInsufficientStock)

	_, err = s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: uuid.New(), Direction: domain.DirectionIn, Quantity: 1, Reason: "restock",
	})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: uuid.New(), Direction: domain.DirectionOut, Quantity: 1, Reason: "sale",
	})
	s.ErrorIs(err, domain.ErrNotFound)

	s.Equal(3, s.stock(p))
	s.Equal(before, helpers.CountMovements(s.T(), s.testDB.PgxPool, p))
}

func (s *StockLedgerSuite) TestOutToExactlyZero() {
	p := s.stockedProduct("P-3", 5)

	res := s.apply(p, domain.DirectionOut, 5, "sale")

	s.Equal(0, res.Product.CurrentStock)
	s.assertBalanced(p)
}

func (s *StockLedgerSuite) TestInPastIntegerRangeIsConflict() {
	p := s.stockedProduct("P-MAX", domain.MaxQuantity-1)

	_, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
		ProductID: p,
		Direction: domain.DirectionIn,
		Quantity:  5,
		Reason:    "restock",
		ActorID:   "tester",
	})

	s.Require().Error(err)
	s.Equal(domain.KindConflict, domain.KindOf(err))
	s.Equal(domain.MaxQuantity-1, s.stock(p))
	s.Equal(1, helpers.CountMovements(s.T(), s.testDB.PgxPool, p))
}

// failingLedger fails the nth movement applied inside a transaction.
type failingLedger struct {
	ports.StockLedger
	failOn int
	calls  int
}

func (f *failingLedger) ApplyMovementTx(ctx context.Context, tx pgx.Tx, in domain.MovementInput) (*domain.MovementResult, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("simulated failure")
	}
	return f.StockLedger.ApplyMovementTx(ctx, tx, in)
}

func (s *StockLedgerSuite) TestReceiveIsAllOrNothing() {
	a := s.stockedProduct("A", 1)
	b := s.stockedProduct("B", 2)
	c := s.stockedProduct("C", 3)
	order := s.createOrder(map[uuid.UUID]int{a: 10, b: 20, c: 30}, a, b, c)

	failing := &failingLedger{StockLedger: s.ledger, failOn: 2}
	_, err := s.newReceiver(failing).Receive(s.ctx, order.ID, "tester")
	s.Require().Error(err)

	stored, err := s.orders.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPending, stored.Status)
	s.Nil(stored.ReceivedAt)

	moved, err := s.movements.ListByOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Empty(moved)

	s.Equal(1, s.stock(a))
	s.Equal(2, s.stock(b))
	s.Equal(3, s.stock(c))

	// The order is still receivable afterwards.
	_, err = s.receiver.Receive(s.ctx, order.ID, "tester")
	s.Require().NoError(err)
	s.Equal(11, s.stock(a))
	s.Equal(22, s.stock(b))
	s.Equal(33, s.stock(c))
}

func (s *StockLedgerSuite) TestReceiveRecordsOneMovementPerLine() {
	a := s.stockedProduct("A", 0)
	b := s.stockedProduct("B", 0)
	order := s.createOrder(map[uuid.UUID]int{a: 4, b: 9}, a, b)

	_, err := s.receiver.Receive(s.ctx, order.ID, "tester")
	s.Require().NoError(err)

	stored, err := s.orders.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReceived, stored.Status)
	s.NotNil(stored.ReceivedAt)

	moved, err := s.movements.ListByOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(moved, 2)

	byProduct := map[uuid.UUID]*domain.StockMovement{}
	for _, m := range moved {
		byProduct[m.ProductID] = m
		s.Equal(domain.DirectionIn, m.Direction)
		s.Equal(domain.ReceivedFromOrderReason(order.ID), m.Reason)
		s.Equal("tester", m.ActorID)
	}
	s.Equal(4, byProduct[a].Quantity)
	s.Equal(9, byProduct[b].Quantity)
	s.assertBalanced(a)
	s.assertBalanced(b)
}

func (s *StockLedgerSuite) TestStateMachine() {
	p := s.stockedProduct("P-4", 0)

	cancelled := s.createOrder(map[uuid.UUID]int{p: 5}, p)
	_, err := s.receiver.Cancel(s.ctx, cancelled.ID)
	s.Require().NoError(err)

	_, err = s.receiver.Receive(s.ctx, cancelled.ID, "tester")
	s.ErrorIs(err, domain.ErrConflict)
	s.Contains(err.Error(), "cancelled")

	_, err = s.receiver.Cancel(s.ctx, cancelled.ID)
	s.ErrorIs(err, domain.ErrConflict)

	received := s.createOrder(map[uuid.UUID]int{p: 5}, p)
	_, err = s.receiver.Receive(s.ctx, received.ID, "tester")
	s.Require().NoError(err)

	_, err = s.receiver.Cancel(s.ctx, received.ID)
	s.ErrorIs(err, domain.ErrConflict)
	s.Contains(err.Error(), "received")

	_, err = s.receiver.Receive(s.ctx, uuid.New(), "tester")
	s.ErrorIs(err, domain.ErrNotFound)

	s.Equal(5, s.stock(p))
	moved, err := s.movements.ListByOrder(s.ctx, cancelled.ID)
	s.Require().NoError(err)
	s.Empty(moved)
}

func (s *StockLedgerSuite) TestIdempotencyKey() {
	p := s.stockedProduct("P-5", 10)
	in := domain.MovementInput{
		ProductID: p, Direction: domain.DirectionOut, Quantity: 3, Reason: "sale", IdempotencyKey: "order-77",
	}

	first, err := s.ledger.ApplyMovement(s.ctx, in)
	s.Require().NoError(err)
	s.False(first.Replayed)

	second, err := s.ledger.ApplyMovement(s.ctx, in)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Movement.ID, second.Movement.ID)

	s.Equal(7, s.stock(p))
	s.Equal(2, helpers.CountMovements(s.T(), s.testDB.PgxPool, p))
}

func (s *StockLedgerSuite) TestMovementsAreAppendOnly() {
	p := s.stockedProduct("P-6", 4)

	_, err := s.testDB.PgxPool.Exec(s.ctx, `UPDATE stock_movements SET quantity = 99 WHERE product_id = $1`, p)
	s.Error(err)

	_, err = s.testDB.PgxPool.Exec(s.ctx, `DELETE FROM stock_movements WHERE product_id = $1`, p)
	s.Error(err)

	s.assertBalanced(p)
}

func (s *StockLedgerSuite) TestConcurrentOutMovements() {
	for round := 0; round < 10; round++ {
		p := s.stockedProduct(uuid.NewString()[:8], 10)

		var (
			wg           sync.WaitGroup
			start        = make(chan struct{})
			mu           sync.Mutex
			successes    int
			insufficient int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
					ProductID: p, Direction: domain.DirectionOut, Quantity: 6, Reason: "sale",
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, domain.ErrInsufficientStock):
					insufficient++
				default:
					s.T().Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		s.Equal(1, successes, "round %d", round)
		s.Equal(1, insufficient, "round %d", round)
		s.Equal(4, s.stock(p))
		s.assertBalanced(p)
	}
}

func (s *StockLedgerSuite) TestManyConcurrentOutMovementsNeverOverdraw() {
	p := s.stockedProduct("P-7", 10)

	const callers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		mu    sync.Mutex
		ok    int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ledger.ApplyMovement(s.ctx, domain.MovementInput{
				ProductID: p, Direction: domain.DirectionOut, Quantity: 3, Reason: "sale",
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(3, ok)
	s.Equal(1, s.stock(p))
	s.assertBalanced(p)
}
