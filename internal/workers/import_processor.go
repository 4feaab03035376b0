// internal/workers/import_processor.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
)

const maxImportRows = 10000

// Header aliases accepted in the first row. The product export's own headers are included
// so an exported sheet can be edited and loaded again.
var importHeaders = map[string]string{
	"name":            "name",
	"product":         "name",
	"sku":             "sku",
	"description":     "description",
	"category":        "category",
	"category_id":     "category",
	"category id":     "category",
	"price":           "price",
	"stock":           "stock",
	"current stock":   "stock",
	"current_stock":   "stock",
	"opening stock":   "stock",
	"min stock":       "min_stock",
	"min stock level": "min_stock",
	"min_stock_level": "min_stock",
}

// RowError reports a spreadsheet row that was not imported. Rows are 1-based
// as shown by spreadsheet software.
type RowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

// ImportResult summarises a catalog import. It is stored next to the upload.
type ImportResult struct {
	ObjectKey string     `json:"object_key"`
	Rows      int        `json:"rows"`
	Created   int        `json:"created"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors"`
}

// ResultKey is where the summary of an import is written.
func ResultKey(objectKey string) string {
	return objectKey + ".result.json"
}

// ImportProcessor loads products from uploaded spreadsheets.
type ImportProcessor struct {
	catalog ports.CatalogService
	storage ports.ObjectStorage
	logger  *slog.Logger
}

// NewImportProcessor creates a new import processor
func NewImportProcessor(catalog ports.CatalogService, storage ports.ObjectStorage, logger *slog.Logger) *ImportProcessor {
	return &ImportProcessor{
		catalog: catalog,
		storage: storage,
		logger:  logger.With(slog.String("processor", "import")),
	}
}

// ProcessTask creates one product per data row. Each row is its own
// transaction: a bad row is reported and the rest of the sheet still loads.
func (p *ImportProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var req ports.ImportRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if req.ObjectKey == "" {
		return fmt.Errorf("import request without object key: %w", asynq.SkipRetry)
	}

	p.logger.InfoContext(ctx, "processing catalog import",
		slog.String("object_key", req.ObjectKey),
		slog.String("filename", req.Filename),
		slog.String("requested_by", req.RequestedBy))

	rc, err := p.storage.Download(ctx, req.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to download upload: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %v: %w", err, asynq.SkipRetry)
	}
	if len(file.Sheets) == 0 {
		return fmt.Errorf("spreadsheet has no sheets: %w", asynq.SkipRetry)
	}

	categories, err := p.categoryIndex(ctx)
	if err != nil {
		return err
	}

	rows, err := readRows(file.Sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read rows: %v: %w", err, asynq.SkipRetry)
	}

	result := &ImportResult{ObjectKey: req.ObjectKey, Errors: []RowError{}}
	for _, row := range rows {
		result.Rows++
		product, err := row.product(categories)
		if err == nil {
			_, err = p.catalog.CreateProduct(ctx, product, req.RequestedBy)
		}
		if err != nil {
			if domain.KindOf(err) == domain.KindInternal {
				return fmt.Errorf("failed to import row %d: %w", row.number, err)
			}
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: row.number, SKU: row.get("sku"), Message: errorMessage(err)})
			continue
		}
		result.Created++
	}

	if err := p.storeResult(ctx, result); err != nil {
		p.logger.WarnContext(ctx, "failed to store import result",
			slog.String("object_key", req.ObjectKey),
			slog.String("error", err.Error()))
	}

	p.logger.InfoContext(ctx, "catalog import completed",
		slog.String("object_key", req.ObjectKey),
		slog.Int("rows", result.Rows),
		slog.Int("created", result.Created),
		slog.Int("failed", result.Failed))
	return nil
}

func (p *ImportProcessor) categoryIndex(ctx context.Context) (map[string]uuid.UUID, error) {
	categories, err := p.catalog.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	index := make(map[string]uuid.UUID, len(categories)*2)
	for _, c := range categories {
		index[strings.ToLower(strings.TrimSpace(c.Name))] = c.ID
		index[c.ID.String()] = c.ID
	}
	return index, nil
}

func (p *ImportProcessor) storeResult(ctx context.Context, result *ImportResult) error {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = p.storage.Upload(ctx, ResultKey(result.ObjectKey), bytes.NewReader(body), "application/json")
	return err
}

type sheetRow struct {
	number int
	values map[string]string
}

func (r sheetRow) get(field string) string {
	return r.values[field]
}

// readRows maps every data row by the header row. Blank rows are skipped.
func readRows(sheet *xlsx.Sheet) ([]sheetRow, error) {
	var (
		columns map[int]string
		rows    []sheetRow
	)

	err := sheet.ForEachRow(func(r *xlsx.Row) error {
		cells := make([]string, sheet.MaxCol)
		for i := range cells {
			if c := r.GetCell(i); c != nil {
				cells[i] = strings.TrimSpace(c.String())
			}
		}

		if columns == nil {
			columns = make(map[int]string)
			for i, h := range cells {
				if field, ok := importHeaders[strings.ToLower(h)]; ok {
					columns[i] = field
				}
			}
			for _, required := range []string{"name", "sku", "category"} {
				if !hasField(columns, required) {
					return fmt.Errorf("missing %q column", required)
				}
			}
			return nil
		}

		values := make(map[string]string, len(columns))
		blank := true
		for i, v := range cells {
			if field, ok := columns[i]; ok && v != "" {
				values[field] = v
				blank = false
			}
		}
		if blank {
			return nil
		}
		if len(rows) >= maxImportRows {
			return fmt.Errorf("sheet exceeds %d rows", maxImportRows)
		}
		rows = append(rows, sheetRow{number: r.GetCoordinate() + 1, values: values})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if columns == nil {
		return nil, fmt.Errorf("sheet is empty")
	}
	return rows, nil
}

func hasField(columns map[int]string, field string) bool {
	for _, f := range columns {
		if f == field {
			return true
		}
	}
	return false
}

func (r sheetRow) product(categories map[string]uuid.UUID) (*domain.Product, error) {
	category := r.get("category")
	categoryID, ok := categories[strings.ToLower(category)]
	if !ok {
		return nil, domain.NewValidationError("unknown category %q", category)
	}

	price := decimal.Zero
	if s := strings.TrimPrefix(r.get("price"), "$"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, domain.NewValidationError("invalid price %q", s)
		}
		price = d
	}

	stock, err := parseCount(r.get("stock"), "stock")
	if err != nil {
		return nil, err
	}
	minStock, err := parseCount(r.get("min_stock"), "min stock level")
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:          r.get("name"),
		SKU:           r.get("sku"),
		Description:   r.get("description"),
		CategoryID:    categoryID,
		Price:         price.Round(2),
		CurrentStock:  stock,
		MinStockLevel: minStock,
	}
	product.Normalize()
	if err := product.Validate(); err != nil {
		return nil, err
	}
	return product, nil
}

// parseCount accepts whole numbers, including spreadsheet floats like "12.0".
func parseCount(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, domain.NewValidationError("invalid %s %q", field, s)
	}
	return int(d.IntPart()), nil
}

func errorMessage(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}
