// internal/handlers/movements_test.go
package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func decodeError(t *testing.T, body []byte) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestMovementHandler_Create(t *testing.T) {
	principal := helpers.TestPrincipal()
	product := helpers.CreateTestProduct()

	tests := []struct {
		name           string
		body           string
		idempotencyKey string
		anonymous      bool
		setupMocks     func(*mocks.MockStockLedger)
		expectedStatus int
		expectedCode   string
		validate       func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "records_outbound_movement",
			body: `{"product_id":"` + product.ID.String() + `","type":"out","quantity":3,"reason":"sale"}`,
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), domain.MovementInput{
						ProductID: product.ID,
						Direction: domain.DirectionOut,
						Quantity:  3,
						Reason:    "sale",
						ActorID:   principal.UserID.String(),
					}).
					Return(&domain.MovementResult{
						Movement: &domain.StockMovement{ID: uuid.New(), ProductID: product.ID, Direction: domain.DirectionOut, Quantity: 3},
						Product:  product,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var result domain.MovementResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
				assert.Equal(t, domain.DirectionOut, result.Movement.Direction)
				assert.Equal(t, product.ID, result.Product.ID)
				assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
			},
		},
		{
			name: "accepts_camel_case_product_id",
			body: `{"productId":"` + product.ID.String() + `","type":"IN","quantity":4,"reason":"restock"}`,
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), domain.MovementInput{
						ProductID: product.ID,
						Direction: domain.DirectionIn,
						Quantity:  4,
						Reason:    "restock",
						ActorID:   principal.UserID.String(),
					}).
					Return(&domain.MovementResult{
						Movement: &domain.StockMovement{ID: uuid.New(), ProductID: product.ID, Direction: domain.DirectionIn, Quantity: 4},
						Product:  product,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "replayed_key_returns_ok",
			body:           `{"product_id":"` + product.ID.String() + `","type":"IN","quantity":1,"reason":"restock"}`,
			idempotencyKey: "key-1",
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, in domain.MovementInput) (*domain.MovementResult, error) {
						assert.Equal(t, "key-1", in.IdempotencyKey)
						return &domain.MovementResult{
							Movement: &domain.StockMovement{ID: uuid.New()},
							Product:  product,
							Replayed: true,
						}, nil
					})
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
			},
		},
		{
			name: "insufficient_stock_is_conflict",
			body: `{"product_id":"` + product.ID.String() + `","type":"OUT","quantity":50,"reason":"sale"}`,
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), gomock.Any()).
					Return(nil, domain.NewInsufficientStockError(product.ID, 50, 10))
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.CodeInsufficientStock,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				resp := decodeError(t, w.Body.Bytes())
				assert.EqualValues(t, 10, resp.Details["available"])
			},
		},
		{
			name: "unknown_product_is_not_found",
			body: `{"product_id":"` + product.ID.String() + `","type":"OUT","quantity":1,"reason":"sale"}`,
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), gomock.Any()).
					Return(nil, domain.NewNotFoundError("product", product.ID))
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.CodeNotFound,
		},
		{
			name:           "invalid_direction",
			body:           `{"product_id":"` + product.ID.String() + `","type":"SIDEWAYS","quantity":1,"reason":"sale"}`,
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.CodeValidation,
		},
		{
			name:           "invalid_product_id",
			body:           `{"product_id":"nope","type":"IN","quantity":1,"reason":"sale"}`,
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.CodeValidation,
		},
		{
			name:           "unknown_field_rejected",
			body:           `{"product_id":"` + product.ID.String() + `","type":"IN","quantity":1,"reason":"x","extra":true}`,
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.CodeValidation,
		},
		{
			name:           "requires_authentication",
			body:           `{}`,
			anonymous:      true,
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   domain.CodeUnauthorized,
		},
		{
			name: "internal_error_hides_cause",
			body: `{"product_id":"` + product.ID.String() + `","type":"IN","quantity":1,"reason":"x"}`,
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ApplyMovement(gomock.Any(), gomock.Any()).
					Return(nil, domain.NewInternalError("failed to apply movement", errors.New("connection reset")))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   domain.CodeInternal,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.NotContains(t, w.Body.String(), "connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ledger := mocks.NewMockStockLedger(ctrl)
			tt.setupMocks(ledger)

			handler := handlers.NewMovementHandler(ledger, helpers.TestLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/stock-transactions", strings.NewReader(tt.body))
			if tt.idempotencyKey != "" {
				req.Header.Set(handlers.IdempotencyKeyHeader, tt.idempotencyKey)
			}
			if !tt.anonymous {
				req = helpers.WithPrincipal(req, principal)
			}
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w.Body.Bytes()).Code)
			}
			if tt.validate != nil {
				tt.validate(t, w)
			}
		})
	}
}

func TestMovementHandler_List(t *testing.T) {
	productID := uuid.New()

	tests := []struct {
		name           string
		query          string
		setupMocks     func(*mocks.MockStockLedger)
		expectedStatus int
	}{
		{
			name:  "filters_by_product_type_and_dates",
			query: "?product_id=" + productID.String() + "&type=in&startDate=2024-01-01&endDate=2024-01-31&page=2&limit=5",
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ListMovements(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, f domain.MovementFilter) (*domain.Page[*domain.StockMovement], error) {
						require.NotNil(t, f.ProductID)
						assert.Equal(t, productID, *f.ProductID)
						assert.Equal(t, domain.DirectionIn, f.Direction)
						require.NotNil(t, f.StartDate)
						require.NotNil(t, f.EndDate)
						assert.True(t, f.EndDate.After(*f.StartDate))
						assert.Equal(t, 2, f.Page)
						assert.Equal(t, 5, f.Limit)
						return domain.NewPage[*domain.StockMovement](nil, 0, f.Page, f.Limit), nil
					})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "type_all_means_no_filter",
			query: "?type=all",
			setupMocks: func(m *mocks.MockStockLedger) {
				m.EXPECT().
					ListMovements(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, f domain.MovementFilter) (*domain.Page[*domain.StockMovement], error) {
						assert.Empty(t, f.Direction)
						return domain.NewPage[*domain.StockMovement](nil, 0, 1, 20), nil
					})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid_date",
			query:          "?from=yesterday",
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid_product_id",
			query:          "?product_id=abc",
			setupMocks:     func(m *mocks.MockStockLedger) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ledger := mocks.NewMockStockLedger(ctrl)
			tt.setupMocks(ledger)

			handler := handlers.NewMovementHandler(ledger, helpers.TestLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stock-transactions"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.List(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestMovementHandler_Reconcile(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockStockLedger(ctrl)
	productID := uuid.New()

	ledger.EXPECT().
		Reconcile(gomock.Any(), productID).
		Return(&domain.Reconciliation{ProductID: productID, CurrentStock: 7, LedgerBalance: 7, MovementCount: 3, Consistent: true}, nil)

	handler := handlers.NewMovementHandler(ledger, helpers.TestLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID.String()+"/reconcile", nil)
	req.SetPathValue("id", productID.String())
	w := httptest.NewRecorder()

	handler.Reconcile(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.Reconciliation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Consistent)
	assert.Equal(t, 3, rec.MovementCount)
}

func TestMovementHandler_ProductHistory(t *testing.T) {
	t.Run("empty_history_is_empty_list", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ledger := mocks.NewMockStockLedger(ctrl)
		productID := uuid.New()
		ledger.EXPECT().ProductHistory(gomock.Any(), productID).Return(nil, nil)

		handler := handlers.NewMovementHandler(ledger, helpers.TestLogger())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", productID.String())
		w := httptest.NewRecorder()

		handler.ProductHistory(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"items":[]}`, w.Body.String())
	})

	t.Run("invalid_id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		handler := handlers.NewMovementHandler(mocks.NewMockStockLedger(ctrl), helpers.TestLogger())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", "not-a-uuid")
		w := httptest.NewRecorder()

		handler.ProductHistory(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid id format", decodeError(t, w.Body.Bytes()).Error)
	})
}
