// internal/core/services/export.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockledger/internal/core/domain"
)

var (
	movementColumns = []string{"Movement ID", "Date", "Product ID", "Product", "SKU", "Direction", "Quantity", "Reason", "Actor", "Order ID"}
	productColumns  = []string{"Product ID", "Name", "SKU", "Category", "Price", "Current Stock", "Min Stock Level", "Status"}
	orderColumns    = []string{"Order ID", "Supplier", "Status", "Order Date", "Expected Date", "Line Items", "Total Amount", "Received At"}
)

func movementRow(m *domain.StockMovement) []string {
	orderID := ""
	if m.OrderID != nil {
		orderID = m.OrderID.String()
	}
	return []string{
		m.ID.String(),
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.ProductID.String(),
		m.ProductName,
		m.ProductSKU,
		string(m.Direction),
		strconv.Itoa(m.Quantity),
		m.Reason,
		m.ActorID,
		orderID,
	}
}

func productRow(p *domain.Product) []string {
	status := "ok"
	switch {
	case p.IsOutOfStock():
		status = "out_of_stock"
	case p.IsLowStock():
		status = "low_stock"
	}
	return []string{
		p.ID.String(),
		p.Name,
		p.SKU,
		p.CategoryName,
		p.Price.StringFixed(2),
		strconv.Itoa(p.CurrentStock),
		strconv.Itoa(p.MinStockLevel),
		status,
	}
}

func orderRow(o *domain.PurchaseOrder) []string {
	received := ""
	if o.ReceivedAt != nil {
		received = o.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		o.ID.String(),
		o.SupplierName,
		string(o.Status),
		o.OrderDate.UTC().Format("2006-01-02"),
		o.ExpectedDate.UTC().Format("2006-01-02"),
		strconv.Itoa(len(o.LineItems)),
		o.TotalAmount.StringFixed(2),
		received,
	}
}

// tableWriter renders rows into one of the export formats.
type tableWriter interface {
	Header(cols []string) error
	Row(values []string) error
	Flush(w io.Writer) error
}

func newTableWriter(format domain.ExportFormat, sheetName string) (tableWriter, error) {
	switch format {
	case domain.FormatCSV:
		buf := &bytes.Buffer{}
		return &csvTable{buf: buf, w: csv.NewWriter(buf)}, nil
	case domain.FormatXLSX:
		file := xlsx.NewFile()
		sheet, err := file.AddSheet(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to add worksheet: %w", err)
		}
		return &xlsxTable{file: file, sheet: sheet}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

type csvTable struct {
	buf *bytes.Buffer
	w   *csv.Writer
}

func (t *csvTable) Header(cols []string) error { return t.w.Write(cols) }
func (t *csvTable) Row(values []string) error  { return t.w.Write(values) }

func (t *csvTable) Flush(w io.Writer) error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return err
	}
	_, err := t.buf.WriteTo(w)
	return err
}

type xlsxTable struct {
	file  *xlsx.File
	sheet *xlsx.Sheet
	cols  int
}

func (t *xlsxTable) Header(cols []string) error {
	row := t.sheet.AddRow()
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}
	t.cols = len(cols)
	return nil
}

func (t *xlsxTable) Row(values []string) error {
	row := t.sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		if n, err := strconv.Atoi(v); err == nil && len(v) < 12 {
			cell.SetInt(n)
			continue
		}
		cell.SetString(v)
	}
	return nil
}

func (t *xlsxTable) Flush(w io.Writer) error {
	for i := 1; i <= t.cols; i++ {
		t.sheet.SetColWidth(i, i, 18)
	}
	return t.file.Write(w)
}

// assign copies *src into *dest when both point to the same type.
func assign(dest, src interface{}) error {
	dv := reflect.ValueOf(dest)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Ptr || sv.Kind() != reflect.Ptr || dv.Elem().Type() != sv.Elem().Type() {
		return fmt.Errorf("cannot assign %T to %T", src, dest)
	}
	dv.Elem().Set(sv.Elem())
	return nil
}
