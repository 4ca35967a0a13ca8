package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceflow/backend/internal/domain/invoice"
)

// DocumentStorage archives uploaded invoice documents
type DocumentStorage interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// VendorBillLine is one line of a vendor bill
type VendorBillLine struct {
	Description string
	Rate        decimal.Decimal
	Quantity    decimal.Decimal
}

// VendorBillRequest is the vendor bill pushed to the accounting system
type VendorBillRequest struct {
	InvoiceID     uuid.UUID
	VendorName    string
	InvoiceNumber string
	InvoiceDate   *time.Time
	DueDate       *time.Time
	Total         decimal.Decimal
	Lines         []VendorBillLine
}

// AccountingClient creates vendor bills in an external accounting system
type AccountingClient interface {
	CreateVendorBill(ctx context.Context, req VendorBillRequest) (string, error)
}

// VendorMappingCache caches resolved vendor mappings by vendor name
type VendorMappingCache interface {
	Get(ctx context.Context, vendorName string) (*invoice.VendorMapping, bool)
	Set(ctx context.Context, vendorName string, mapping *invoice.VendorMapping) error
	Invalidate(ctx context.Context, vendorName string) error
	InvalidateAll(ctx context.Context) error
}

// MappingResolver picks the vendor mapping for an extracted vendor name
type MappingResolver interface {
	Resolve(ctx context.Context, vendorName string) *invoice.VendorMapping
}

// InvoiceExporter renders invoices into a downloadable workbook
type InvoiceExporter interface {
	Export(invoices []invoice.Invoice) ([]byte, error)
}

// NewVendorBillRequest builds the accounting request for a parsed invoice
func NewVendorBillRequest(inv *invoice.Invoice) VendorBillRequest {
	req := VendorBillRequest{
		InvoiceID:     inv.ID,
		VendorName:    inv.VendorName,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		DueDate:       inv.DueDate,
		Total:         inv.TotalAmount,
		Lines:         make([]VendorBillLine, 0, len(inv.LineItems)),
	}
	for _, item := range inv.LineItems {
		rate, qty := billRateAndQuantity(item)
		req.Lines = append(req.Lines, VendorBillLine{
			Description: item.Description,
			Rate:        rate,
			Quantity:    qty,
		})
	}
	return req
}

// billRateAndQuantity picks a rate and quantity whose product is the line amount.
// Without a unit price the amount is split evenly over the quantity, or billed
// once when it does not divide exactly.
func billRateAndQuantity(item invoice.LineItem) (rate, qty decimal.Decimal) {
	rate, qty = item.UnitPrice, item.Quantity
	if !qty.IsPositive() {
		qty = decimal.NewFromInt(1)
	}
	if !rate.IsZero() {
		return rate, qty
	}
	if qty.Equal(decimal.NewFromInt(1)) {
		return item.Amount, qty
	}
	perUnit := item.Amount.DivRound(qty, 4)
	if perUnit.Mul(qty).Equal(item.Amount) {
		return perUnit, qty
	}
	return item.Amount, decimal.NewFromInt(1)
}
