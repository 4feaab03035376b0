// internal/handlers/products_test.go
package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func TestProductHandler_List(t *testing.T) {
	categoryID := uuid.New()

	tests := []struct {
		name           string
		query          string
		setupMocks     func(*mocks.MockCatalogService)
		expectedStatus int
	}{
		{
			name:  "stock_filter_and_category",
			query: "?stockFilter=low&category_id=" + categoryID.String() + "&search=%20bolt%20",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, f ports.ProductFilter) (*domain.Page[*domain.Product], error) {
						assert.Equal(t, domain.StockFilterLow, f.StockFilter)
						require.NotNil(t, f.CategoryID)
						assert.Equal(t, categoryID, *f.CategoryID)
						assert.Equal(t, "bolt", f.Search)
						return domain.NewPage([]*domain.Product{helpers.CreateTestProduct()}, 1, 1, 20), nil
					})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "defaults_to_all",
			query: "",
			setupMocks: func(m *mocks.MockCatalogService) {
				m.EXPECT().
					ListProducts(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, f ports.ProductFilter) (*domain.Page[*domain.Product], error) {
						assert.Equal(t, domain.StockFilterAll, f.StockFilter)
						assert.Nil(t, f.CategoryID)
						assert.Equal(t, 20, f.Limit)
						return domain.NewPage[*domain.Product](nil, 0, 1, 20), nil
					})
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown_stock_filter",
			query:          "?stock_filter=some",
			setupMocks:     func(m *mocks.MockCatalogService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			catalog := mocks.NewMockCatalogService(ctrl)
			tt.setupMocks(catalog)

			handler := handlers.NewProductHandler(catalog, helpers.TestLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.List(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestProductHandler_Create(t *testing.T) {
	principal := helpers.TestPrincipal()
	categoryID := uuid.New()

	t.Run("opening_balance_passes_actor", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalogService(ctrl)
		catalog.EXPECT().
			CreateProduct(gomock.Any(), gomock.Any(), principal.UserID.String()).
			DoAndReturn(func(_ any, p *domain.Product, _ string) (*domain.Product, error) {
				assert.Equal(t, 12, p.CurrentStock)
				assert.Equal(t, categoryID, p.CategoryID)
				p.ID = uuid.New()
				return p, nil
			})

		handler := handlers.NewProductHandler(catalog, helpers.TestLogger())
		body := `{"name":"Bolt","sku":"B-1","category_id":"` + categoryID.String() + `","price":"0.25","current_stock":12,"min_stock_level":3}`
		req := helpers.WithPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)), principal)
		w := httptest.NewRecorder()

		handler.Create(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		var p domain.Product
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		assert.Equal(t, "B-1", p.SKU)
	})

	t.Run("duplicate_sku_is_conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalogService(ctrl)
		catalog.EXPECT().
			CreateProduct(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, domain.NewConflictError("sku %q already exists", "B-1"))

		handler := handlers.NewProductHandler(catalog, helpers.TestLogger())
		body := `{"name":"Bolt","sku":"B-1","category_id":"` + categoryID.String() + `","price":"1"}`
		req := helpers.WithPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)), principal)
		w := httptest.NewRecorder()

		handler.Create(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, domain.CodeConflict, decodeError(t, w.Body.Bytes()).Code)
	})
}

func TestProductHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "deleted", err: nil, expectedStatus: http.StatusNoContent},
		{name: "has_movements", err: domain.NewConflictError("product has stock movements"), expectedStatus: http.StatusConflict},
		{name: "missing", err: domain.NewNotFoundError("product", "x"), expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			catalog := mocks.NewMockCatalogService(ctrl)
			id := uuid.New()
			catalog.EXPECT().DeleteProduct(gomock.Any(), id).Return(tt.err)

			handler := handlers.NewProductHandler(catalog, helpers.TestLogger())
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+id.String(), nil)
			req.SetPathValue("id", id.String())
			w := httptest.NewRecorder()

			handler.Delete(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
