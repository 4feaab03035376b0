//go:build e2e
// +build e2e

package e2e_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/ammerola/stockledger/internal/bootstrap"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/test/helpers"
)

type StockWorkflowE2ESuite struct {
	suite.Suite
	server    *httptest.Server
	client    *http.Client
	baseURL   string
	token     string
	testDB    *helpers.TestDB
	testRedis *helpers.TestRedis
}

func (s *StockWorkflowE2ESuite) SetupSuite() {
	s.testDB = helpers.SetupTestDB(s.T())
	s.testRedis = helpers.SetupTestRedis(s.T())

	s.server = s.startTestServer()
	s.client = &http.Client{Timeout: 10 * time.Second}
	s.baseURL = s.server.URL + "/api/v1"
	s.token = helpers.BearerToken(s.T(), auth.Principal{
		UserID: uuid.New(),
		Email:  "e2e@example.com",
		Role:   domain.RoleAdmin,
	})
}

func (s *StockWorkflowE2ESuite) TearDownSuite() {
	s.server.Close()
}

func (s *StockWorkflowE2ESuite) SetupTest() {
	helpers.TruncateAllTables(s.T(), s.testDB.PgxPool)
	s.testRedis.Server.FlushAll()
}

func (s *StockWorkflowE2ESuite) startTestServer() *httptest.Server {
	cfg := helpers.LoadTestConfig()
	logger := helpers.TestLogger()

	cache := bootstrap.Cache(cfg, s.testRedis.Client, logger)
	svc := bootstrap.NewServices(cfg, s.testDB.Database, cache, nil, logger)

	router := handlers.NewRouter(handlers.Handlers{
		Health:         handlers.NewHealthHandler(s.testDB.Database, cache, nil, "e2e", "test", logger),
		Movements:      handlers.NewMovementHandler(svc.Ledger, logger),
		Products:       handlers.NewProductHandler(svc.Catalog, logger),
		Categories:     handlers.NewCategoryHandler(svc.Catalog, logger),
		Suppliers:      handlers.NewSupplierHandler(svc.Catalog, logger),
		PurchaseOrders: handlers.NewPurchaseOrderHandler(svc.Orders, logger),
		Dashboard:      handlers.NewDashboardHandler(svc.Reports, logger),
		Export:         handlers.NewExportHandler(svc.Reports, logger),
		Users:          handlers.NewUserHandler(svc.Users, logger),
	}, handlers.RouterConfig{
		Verifier:        helpers.TestVerifier(s.T()),
		RequestIDHeader: "X-Request-ID",
		RequestTimeout:  10 * time.Second,
	}, logger)

	return httptest.NewServer(router)
}

func (s *StockWorkflowE2ESuite) TestReceivingWorkflow() {
	categoryID := s.createID("/categories", map[string]any{"name": "Electronics"})
	supplierID := s.createID("/suppliers", map[string]any{"name": "Northwind", "email": "orders@northwind.example"})

	// 1. Product with an opening balance of 10
	productID := s.createID("/products", map[string]any{
		"name":            "HDMI Adapter",
		"sku":             "EL-HDMI-AD",
		"category_id":     categoryID,
		"price":           "14.50",
		"current_stock":   10,
		"min_stock_level": 3,
	})

	// 2. OUT 4 succeeds
	resp := s.makeRequest(http.MethodPost, "/stock-transactions", map[string]any{
		"product_id": productID, "type": "OUT", "quantity": 4, "reason": "sale",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)
	var result domain.MovementResult
	s.decodeResponse(resp, &result)
	s.Equal(6, result.Product.CurrentStock)

	// 3. OUT 10 is rejected
	resp = s.makeRequest(http.MethodPost, "/stock-transactions", map[string]any{
		"product_id": productID, "type": "OUT", "quantity": 10, "reason": "sale",
	})
	s.Equal(http.StatusConflict, resp.StatusCode)
	var apiErr handlers.ErrorResponse
	s.decodeResponse(resp, &apiErr)
	s.Equal(domain.CodeInsufficientStock, apiErr.Code)
	s.Equal(6, s.productStock(productID))

	// 4. Order 5 and receive it
	orderID := s.createID("/purchase-orders", map[string]any{
		"supplier_id":   supplierID,
		"expected_date": time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		"items": []map[string]any{
			{"product_id": productID, "quantity": 5, "unit_price": "12.00"},
		},
	})

	resp = s.makeRequest(http.MethodPut, "/purchase-orders/"+orderID+"/receive", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var order domain.PurchaseOrder
	s.decodeResponse(resp, &order)
	s.Equal(domain.OrderStatusReceived, order.Status)
	s.Equal("60.00", order.TotalAmount.StringFixed(2))
	s.Equal(11, s.productStock(productID))

	// 5. Receiving twice is a conflict
	resp = s.makeRequest(http.MethodPut, "/purchase-orders/"+orderID+"/receive", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.decodeResponse(resp, &apiErr)
	s.Equal(domain.CodeConflict, apiErr.Code)
	s.Equal(11, s.productStock(productID))

	// 6. The ledger explains the stock level
	resp = s.makeRequest(http.MethodGet, "/products/"+productID+"/reconcile", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var rec domain.Reconciliation
	s.decodeResponse(resp, &rec)
	s.True(rec.Consistent)
	s.Equal(11, rec.LedgerBalance)
	s.Equal(3, rec.MovementCount)
}

func (s *StockWorkflowE2ESuite) TestCancelledOrderNeverTouchesStock() {
	categoryID := s.createID("/categories", map[string]any{"name": "Office"})
	supplierID := s.createID("/suppliers", map[string]any{"name": "Contoso"})
	productID := s.createID("/products", map[string]any{
		"name": "Gel Pen", "sku": "OF-PEN", "category_id": categoryID, "price": "1.10", "current_stock": 2,
	})
	orderID := s.createID("/purchase-orders", map[string]any{
		"supplier_id":   supplierID,
		"expected_date": time.Now().AddDate(0, 0, 2).Format("2006-01-02"),
		"items":         []map[string]any{{"product_id": productID, "quantity": 50, "unit_price": "0.80"}},
	})

	resp := s.makeRequest(http.MethodPut, "/purchase-orders/"+orderID, map[string]any{"status": "CANCELLED"})
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.makeRequest(http.MethodPut, "/purchase-orders/"+orderID+"/receive", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	s.Equal(2, s.productStock(productID))
}

func (s *StockWorkflowE2ESuite) TestConcurrentStockOut() {
	categoryID := s.createID("/categories", map[string]any{"name": "Hardware"})
	productID := s.createID("/products", map[string]any{
		"name": "Wood Screws", "sku": "HW-SCR", "category_id": categoryID, "price": "3.80", "current_stock": 10,
	})

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		statuses []int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp := s.makeRequest(http.MethodPost, "/stock-transactions", map[string]any{
				"product_id": productID, "type": "OUT", "quantity": 6, "reason": "sale",
			})
			resp.Body.Close()
			mu.Lock()
			statuses = append(statuses, resp.StatusCode)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	s.ElementsMatch([]int{http.StatusCreated, http.StatusConflict}, statuses)
	s.Equal(4, s.productStock(productID))
}

func (s *StockWorkflowE2ESuite) TestIdempotentRetry() {
	categoryID := s.createID("/categories", map[string]any{"name": "Cables"})
	productID := s.createID("/products", map[string]any{
		"name": "USB-C Cable", "sku": "EL-USBC", "category_id": categoryID, "price": "9.99", "current_stock": 20,
	})
	body := map[string]any{"product_id": productID, "type": "OUT", "quantity": 5, "reason": "sale"}

	first := s.makeRequestWithHeaders(http.MethodPost, "/stock-transactions", body, map[string]string{"Idempotency-Key": "retry-1"})
	s.Equal(http.StatusCreated, first.StatusCode)
	first.Body.Close()

	second := s.makeRequestWithHeaders(http.MethodPost, "/stock-transactions", body, map[string]string{"Idempotency-Key": "retry-1"})
	s.Equal(http.StatusOK, second.StatusCode)
	s.Equal("true", second.Header.Get("Idempotent-Replayed"))
	second.Body.Close()

	s.Equal(15, s.productStock(productID))
}

func (s *StockWorkflowE2ESuite) TestAlertsAndExport() {
	categoryID := s.createID("/categories", map[string]any{"name": "Peripherals"})
	productID := s.createID("/products", map[string]any{
		"name": "Wireless Mouse", "sku": "EL-MOUSE", "category_id": categoryID, "price": "24.00",
		"current_stock": 3, "min_stock_level": 5,
	})

	resp := s.makeRequest(http.MethodGet, "/stock-alerts", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var alerts domain.StockAlerts
	s.decodeResponse(resp, &alerts)
	s.Equal(1, alerts.Total)
	s.Require().Len(alerts.LowStock, 1)
	s.Equal(productID, alerts.LowStock[0].ID.String())

	// Emptying the shelf invalidates the cached alerts.
	resp = s.makeRequest(http.MethodPost, "/stock-transactions", map[string]any{
		"product_id": productID, "type": "OUT", "quantity": 3, "reason": "sale",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.makeRequest(http.MethodGet, "/stock-alerts", nil)
	s.decodeResponse(resp, &alerts)
	s.Len(alerts.OutOfStock, 1)
	s.Empty(alerts.LowStock)

	resp = s.makeRequest(http.MethodGet, "/export/movements?format=csv", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	records, err := csv.NewReader(resp.Body).ReadAll()
	s.Require().NoError(err)
	s.Len(records, 3, "header plus opening balance and sale")
}

func (s *StockWorkflowE2ESuite) TestUnauthenticatedRequestsAreRejected() {
	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/products", nil)
	s.Require().NoError(err)

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *StockWorkflowE2ESuite) TestHealth() {
	resp, err := s.client.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

// Helper methods

func (s *StockWorkflowE2ESuite) createID(path string, body any) string {
	resp := s.makeRequest(http.MethodPost, path, body)
	if !s.Equal(http.StatusCreated, resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		s.FailNow(fmt.Sprintf("POST %s: %s", path, b))
	}
	var created struct {
		ID string `json:"id"`
	}
	s.decodeResponse(resp, &created)
	s.Require().NotEmpty(created.ID)
	return created.ID
}

func (s *StockWorkflowE2ESuite) productStock(id string) int {
	resp := s.makeRequest(http.MethodGet, "/products/"+id, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var p domain.Product
	s.decodeResponse(resp, &p)
	return p.CurrentStock
}

func (s *StockWorkflowE2ESuite) makeRequest(method, path string, body any) *http.Response {
	return s.makeRequestWithHeaders(method, path, body, nil)
}

func (s *StockWorkflowE2ESuite) makeRequestWithHeaders(method, path string, body any, headers map[string]string) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		s.NoError(err)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reqBody)
	s.NoError(err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", s.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	s.NoError(err)

	return resp
}

func (s *StockWorkflowE2ESuite) decodeResponse(resp *http.Response, v any) {
	defer resp.Body.Close()
	err := json.NewDecoder(resp.Body).Decode(v)
	s.NoError(err)
}

func TestStockWorkflowE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(StockWorkflowE2ESuite))
}
