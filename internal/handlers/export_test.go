// internal/handlers/export_test.go
package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func TestExportHandler_Export(t *testing.T) {
	tests := []struct {
		name            string
		dataset         string
		query           string
		setupMocks      func(*mocks.MockReportService)
		expectedStatus  int
		expectedType    string
		expectedContent string
	}{
		{
			name:    "movements_csv",
			dataset: "movements",
			query:   "?format=csv&from=2024-01-01&to=2024-01-31",
			setupMocks: func(m *mocks.MockReportService) {
				m.EXPECT().
					Export(gomock.Any(), gomock.Any(), domain.ExportMovements, domain.FormatCSV, gomock.Any()).
					DoAndReturn(func(_ any, w io.Writer, _ domain.ExportDataset, _ domain.ExportFormat, r domain.DateRange) error {
						require.NotNil(t, r.From)
						require.NotNil(t, r.To)
						_, err := io.WriteString(w, "id,product\n1,widget\n")
						return err
					})
			},
			expectedStatus:  http.StatusOK,
			expectedType:    "text/csv",
			expectedContent: "id,product\n1,widget\n",
		},
		{
			name:    "products_xlsx",
			dataset: "PRODUCTS",
			query:   "?format=xlsx",
			setupMocks: func(m *mocks.MockReportService) {
				m.EXPECT().
					Export(gomock.Any(), gomock.Any(), domain.ExportProducts, domain.FormatXLSX, gomock.Any()).
					Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedType:   domain.FormatXLSX.ContentType(),
		},
		{
			name:           "unknown_dataset",
			dataset:        "invoices",
			setupMocks:     func(m *mocks.MockReportService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown_format",
			dataset:        "movements",
			query:          "?format=pdf",
			setupMocks:     func(m *mocks.MockReportService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "reversed_range",
			dataset:        "movements",
			query:          "?from=2024-02-01&to=2024-01-01",
			setupMocks:     func(m *mocks.MockReportService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			reports := mocks.NewMockReportService(ctrl)
			tt.setupMocks(reports)

			handler := handlers.NewExportHandler(reports, helpers.TestLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/export/"+tt.dataset+tt.query, nil)
			req.SetPathValue("dataset", tt.dataset)
			w := httptest.NewRecorder()

			handler.Export(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, w.Header().Get("Content-Type"))
				assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\""+strings.ToLower(tt.dataset)+"-")
			}
			if tt.expectedContent != "" {
				assert.Equal(t, tt.expectedContent, w.Body.String())
			}
		})
	}
}

func TestExportHandler_RequestExport(t *testing.T) {
	principal := helpers.TestPrincipal()

	ctrl := gomock.NewController(t)
	reports := mocks.NewMockReportService(ctrl)
	reports.EXPECT().
		RequestExport(gomock.Any(), ports.ExportRequest{
			Dataset:     domain.ExportOrders,
			Format:      domain.FormatXLSX,
			From:        "2024-01-01",
			RequestedBy: principal.UserID.String(),
		}).
		Return("task-1", "exports/2024/01/31/purchase-orders.xlsx", nil)

	handler := handlers.NewExportHandler(reports, helpers.TestLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export/purchase-orders?format=xlsx&from=2024-01-01", nil)
	req.SetPathValue("dataset", "purchase-orders")
	req = helpers.WithPrincipal(req, principal)
	w := httptest.NewRecorder()

	handler.RequestExport(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp handlers.ExportAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "queued", resp.Status)
}

func TestDashboardHandler(t *testing.T) {
	t.Run("stock_alerts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		out := helpers.CreateTestProduct(func(p *domain.Product) { p.CurrentStock = 0 })
		reports.EXPECT().StockAlerts(gomock.Any()).
			Return(&domain.StockAlerts{OutOfStock: []*domain.Product{out}, LowStock: []*domain.Product{}, Total: 1}, nil)

		handler := handlers.NewDashboardHandler(reports, helpers.TestLogger())
		w := httptest.NewRecorder()
		handler.StockAlerts(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock-alerts", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var alerts domain.StockAlerts
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
		assert.Equal(t, 1, alerts.Total)
		assert.Len(t, alerts.OutOfStock, 1)
	})

	t.Run("statistics_passes_range", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		reports.EXPECT().Statistics(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, r domain.DateRange) (*domain.Statistics, error) {
				require.NotNil(t, r.From)
				assert.Nil(t, r.To)
				return &domain.Statistics{}, nil
			})

		handler := handlers.NewDashboardHandler(reports, helpers.TestLogger())
		w := httptest.NewRecorder()
		handler.Statistics(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/statistics?startDate=2024-01-01", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("dashboard_failure_is_internal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reports := mocks.NewMockReportService(ctrl)
		reports.EXPECT().DashboardStats(gomock.Any()).
			Return(nil, domain.NewInternalError("failed to load dashboard", io.ErrUnexpectedEOF))

		handler := handlers.NewDashboardHandler(reports, helpers.TestLogger())
		w := httptest.NewRecorder()
		handler.GetDashboard(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, domain.CodeInternal, decodeError(t, w.Body.Bytes()).Code)
	})
}
