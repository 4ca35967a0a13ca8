package invoice

import (
	"github.com/shopspring/decimal"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

const (
	EventTypeInvoiceParsed     = "InvoiceParsed"
	EventTypeInvoiceFailed     = "InvoiceFailed"
	EventTypeVendorBillCreated = "VendorBillCreated"
)

// InvoiceParsedEvent is raised when an extraction has been normalized and stored
type InvoiceParsedEvent struct {
	shared.BaseDomainEvent
	Parser        string          `json:"parser"`
	VendorName    string          `json:"vendor_name"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LineItemCount int             `json:"line_item_count"`
}

// NewInvoiceParsedEvent creates an InvoiceParsedEvent
func NewInvoiceParsedEvent(inv *Invoice) *InvoiceParsedEvent {
	return &InvoiceParsedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceParsed, AggregateTypeInvoice, inv.ID),
		Parser:          inv.ParserUsed,
		VendorName:      inv.VendorName,
		TotalAmount:     inv.TotalAmount,
		LineItemCount:   len(inv.LineItems),
	}
}

// InvoiceFailedEvent is raised when parsing fails or processing times out
type InvoiceFailedEvent struct {
	shared.BaseDomainEvent
	Reason   string `json:"reason"`
	TimedOut bool   `json:"timed_out"`
}

// NewInvoiceFailedEvent creates an InvoiceFailedEvent
func NewInvoiceFailedEvent(inv *Invoice, timedOut bool) *InvoiceFailedEvent {
	return &InvoiceFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceFailed, AggregateTypeInvoice, inv.ID),
		Reason:          inv.ErrorMessage,
		TimedOut:        timedOut,
	}
}

// VendorBillCreatedEvent is raised after the accounting system accepted the bill
type VendorBillCreatedEvent struct {
	shared.BaseDomainEvent
	VendorBillID string          `json:"vendor_bill_id"`
	VendorName   string          `json:"vendor_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// NewVendorBillCreatedEvent creates a VendorBillCreatedEvent
func NewVendorBillCreatedEvent(inv *Invoice) *VendorBillCreatedEvent {
	return &VendorBillCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVendorBillCreated, AggregateTypeInvoice, inv.ID),
		VendorBillID:    inv.VendorBillID,
		VendorName:      inv.VendorName,
		TotalAmount:     inv.TotalAmount,
	}
}
