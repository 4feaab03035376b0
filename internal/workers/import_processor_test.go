// internal/workers/import_processor_test.go
package workers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/workers"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func buildSheet(t *testing.T, rows [][]string) []byte {
	t.Helper()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	require.NoError(t, err)
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, file.Write(&buf))
	return buf.Bytes()
}

func importTask(t *testing.T, req ports.ImportRequest) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeCatalogImport, payload)
}

func TestImportProcessor_ProcessTask(t *testing.T) {
	const key = "imports/2026/10/16/abcd1234-products.xlsx"
	categoryID := uuid.New()
	categories := []*domain.Category{{ID: categoryID, Name: "Electronics"}}
	req := ports.ImportRequest{ObjectKey: key, Filename: "products.xlsx", RequestedBy: "user-1"}

	t.Run("creates_products_and_reports_bad_rows", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalogService(ctrl)
		objects := mocks.NewMockObjectStorage(ctrl)

		sheet := buildSheet(t, [][]string{
			{"Name", "SKU", "Category", "Price", "Stock", "Min Stock Level"},
			{"Cable", "EL-1", "electronics", "9.99", "10", "2"},
			{"", "", "", "", "", ""},
			{"Adapter", "EL-2", "Garden", "5", "1", "1"},
			{"Mouse", "EL-3", categoryID.String(), "abc", "1", "1"},
			{"Dock", "EL-4", "Electronics", "99", "3", "1"},
		})

		objects.EXPECT().Download(gomock.Any(), key).Return(io.NopCloser(bytes.NewReader(sheet)), nil)
		catalog.EXPECT().ListCategories(gomock.Any()).Return(categories, nil)
		catalog.EXPECT().
			CreateProduct(gomock.Any(), gomock.Any(), "user-1").
			DoAndReturn(func(_ context.Context, p *domain.Product, _ string) (*domain.Product, error) {
				assert.Equal(t, categoryID, p.CategoryID)
				if p.SKU == "EL-1" {
					assert.Equal(t, "Cable", p.Name)
					assert.Equal(t, "9.99", p.Price.StringFixed(2))
					assert.Equal(t, 10, p.CurrentStock)
					assert.Equal(t, 2, p.MinStockLevel)
					return p, nil
				}
				return nil, domain.NewConflictError("sku %s already exists", p.SKU)
			}).
			Times(2)

		var stored workers.ImportResult
		objects.EXPECT().
			Upload(gomock.Any(), workers.ResultKey(key), gomock.Any(), "application/json").
			DoAndReturn(func(_ context.Context, _ string, body io.Reader, _ string) (string, error) {
				require.NoError(t, json.NewDecoder(body).Decode(&stored))
				return "local://" + workers.ResultKey(key), nil
			})

		p := workers.NewImportProcessor(catalog, objects, helpers.TestLogger())
		require.NoError(t, p.ProcessTask(context.Background(), importTask(t, req)))

		assert.Equal(t, key, stored.ObjectKey)
		assert.Equal(t, 4, stored.Rows)
		assert.Equal(t, 1, stored.Created)
		assert.Equal(t, 3, stored.Failed)
		require.Len(t, stored.Errors, 3)
		assert.Equal(t, 4, stored.Errors[0].Row)
		assert.Contains(t, stored.Errors[0].Message, "unknown category")
		assert.Equal(t, "EL-3", stored.Errors[1].SKU)
		assert.Contains(t, stored.Errors[1].Message, "invalid price")
		assert.Equal(t, 6, stored.Errors[2].Row)
		assert.Contains(t, stored.Errors[2].Message, "already exists")
	})

	t.Run("missing_required_column_is_not_retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalogService(ctrl)
		objects := mocks.NewMockObjectStorage(ctrl)

		sheet := buildSheet(t, [][]string{{"Name", "Price"}, {"Cable", "1"}})
		objects.EXPECT().Download(gomock.Any(), key).Return(io.NopCloser(bytes.NewReader(sheet)), nil)
		catalog.EXPECT().ListCategories(gomock.Any()).Return(categories, nil)

		p := workers.NewImportProcessor(catalog, objects, helpers.TestLogger())
		err := p.ProcessTask(context.Background(), importTask(t, req))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
		assert.Contains(t, err.Error(), `"sku"`)
	})

	t.Run("internal_error_aborts_for_retry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		catalog := mocks.NewMockCatalogService(ctrl)
		objects := mocks.NewMockObjectStorage(ctrl)

		sheet := buildSheet(t, [][]string{{"Name", "SKU", "Category"}, {"Cable", "EL-1", "Electronics"}})
		objects.EXPECT().Download(gomock.Any(), key).Return(io.NopCloser(bytes.NewReader(sheet)), nil)
		catalog.EXPECT().ListCategories(gomock.Any()).Return(categories, nil)
		catalog.EXPECT().CreateProduct(gomock.Any(), gomock.Any(), "user-1").
			Return(nil, domain.NewInternalError("database unavailable", errors.New("conn refused")))

		p := workers.NewImportProcessor(catalog, objects, helpers.TestLogger())
		err := p.ProcessTask(context.Background(), importTask(t, req))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("download_failure_is_retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		objects := mocks.NewMockObjectStorage(ctrl)
		objects.EXPECT().Download(gomock.Any(), key).Return(nil, errors.New("timeout"))

		p := workers.NewImportProcessor(mocks.NewMockCatalogService(ctrl), objects, helpers.TestLogger())
		err := p.ProcessTask(context.Background(), importTask(t, req))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("not_a_spreadsheet", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		objects := mocks.NewMockObjectStorage(ctrl)
		objects.EXPECT().Download(gomock.Any(), key).Return(io.NopCloser(bytes.NewReader([]byte("plain text"))), nil)

		p := workers.NewImportProcessor(mocks.NewMockCatalogService(ctrl), objects, helpers.TestLogger())
		err := p.ProcessTask(context.Background(), importTask(t, req))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("malformed_payload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		p := workers.NewImportProcessor(mocks.NewMockCatalogService(ctrl), mocks.NewMockObjectStorage(ctrl), helpers.TestLogger())
		err := p.ProcessTask(context.Background(), asynq.NewTask(queue.TypeCatalogImport, []byte("{")))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}
