// Package export renders invoices into spreadsheet workbooks.
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/domain/invoice"
)

const (
	InvoicesSheet  = "Invoices"
	LineItemsSheet = "Line Items"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var invoiceHeaders = []any{
	"ID", "File", "Status", "Vendor", "Invoice #", "Invoice Date", "Due Date", "Total", "Vendor Bill ID", "Created",
}

var lineItemHeaders = []any{
	"Invoice ID", "Description", "Project #", "Project Name", "Activity", "Qty", "Unit Price", "Amount", "Tax",
}

// Ensure XLSXExporter implements InvoiceExporter
var _ invoiceapp.InvoiceExporter = (*XLSXExporter)(nil)

// XLSXExporter writes invoices and their line items to an XLSX workbook
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates an XLSX exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XLSXExporter{logger: logger}
}

// Export returns the workbook bytes
func (e *XLSXExporter) Export(invoices []invoice.Invoice) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), InvoicesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LineItemsSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	invoiceRow, itemRow := 1, 1
	if err := writeRow(f, InvoicesSheet, invoiceRow, invoiceHeaders); err != nil {
		return nil, err
	}
	if err := writeRow(f, LineItemsSheet, itemRow, lineItemHeaders); err != nil {
		return nil, err
	}

	for i := range invoices {
		inv := &invoices[i]
		invoiceRow++
		if err := writeRow(f, InvoicesSheet, invoiceRow, []any{
			inv.ID.String(),
			inv.FileName,
			inv.Status.String(),
			inv.VendorName,
			inv.InvoiceNumber,
			formatDate(inv.InvoiceDate),
			formatDate(inv.DueDate),
			amount(inv.TotalAmount),
			inv.VendorBillID,
			inv.CreatedAt.UTC().Format(dateTimeLayout),
		}); err != nil {
			return nil, err
		}

		for _, item := range inv.LineItems {
			itemRow++
			if err := writeRow(f, LineItemsSheet, itemRow, []any{
				inv.ID.String(),
				item.Description,
				item.ProjectNumber,
				item.ProjectName,
				item.ActivityCode,
				amount(item.Quantity),
				amount(item.UnitPrice),
				amount(item.Amount),
				amount(item.Tax),
			}); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetRowStyle(InvoicesSheet, 1, 1, headerStyle)
	_ = f.SetRowStyle(LineItemsSheet, 1, 1, headerStyle)
	_ = f.SetColWidth(InvoicesSheet, "A", "A", 38)  // id
	_ = f.SetColWidth(InvoicesSheet, "B", "B", 32)  // file
	_ = f.SetColWidth(InvoicesSheet, "D", "D", 28)  // vendor
	_ = f.SetColWidth(InvoicesSheet, "I", "J", 22)  // bill id, created
	_ = f.SetColWidth(LineItemsSheet, "A", "A", 38) // invoice id
	_ = f.SetColWidth(LineItemsSheet, "B", "B", 48) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("invoices exported",
		zap.Int("invoices", invoiceRow-1),
		zap.Int("line_items", itemRow-1),
		zap.Duration("elapsed", time.Since(start)),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// amount renders a decimal as a numeric cell value
func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
