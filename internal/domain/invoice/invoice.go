package invoice

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

// AggregateTypeInvoice is the aggregate type name used in domain events
const AggregateTypeInvoice = "Invoice"

// ProcessingTimeoutMessage is stored on invoices abandoned by the parser
const ProcessingTimeoutMessage = "Processing timeout - The invoice processing took too long and was aborted."

// DateLayout is the only accepted layout for invoice and due dates
const DateLayout = "2006-01-02"

// Status represents the processing status of an invoice
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusParsed     Status = "parsed"
	StatusError      Status = "error"
	StatusCompleted  Status = "completed"
)

// AllStatuses returns every known invoice status
func AllStatuses() []Status {
	return []Status{StatusUploaded, StatusProcessing, StatusParsed, StatusError, StatusCompleted}
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses(), s)
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true once a vendor bill exists for the invoice
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// HasParsedData returns true for statuses that carry a normalized result
func (s Status) HasParsedData() bool {
	return s == StatusParsed || s == StatusCompleted
}

// ParsedData is the stored outcome of a successful extraction
type ParsedData struct {
	Normalized    *NormalizedInvoice `json:"normalized"`
	RawExtraction map[string]any     `json:"raw_extraction_data"`
}

// Invoice is the aggregate root for an uploaded invoice document
type Invoice struct {
	shared.BaseAggregateRoot
	FileName        string
	ContentType     string
	StorageKey      string
	Status          Status
	VendorName      string
	InvoiceNumber   string
	InvoiceDate     *time.Time
	DueDate         *time.Time
	TotalAmount     decimal.Decimal
	ParsedData      *ParsedData
	ParserUsed      string
	ErrorMessage    string
	VendorBillID    string
	VendorMappingID *uuid.UUID
	LineItems       []LineItem
}

// NewInvoice creates an invoice record for an uploaded document
func NewInvoice(fileName, contentType, storageKey string) (*Invoice, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot be empty")
	}
	if len(fileName) > 255 {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot exceed 255 characters")
	}

	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		FileName:          fileName,
		ContentType:       contentType,
		StorageKey:        storageKey,
		Status:            StatusUploaded,
		TotalAmount:       decimal.Zero,
		LineItems:         make([]LineItem, 0),
	}, nil
}

// StartProcessing moves the invoice into processing before it is sent to a parser
func (i *Invoice) StartProcessing() error {
	if i.Status != StatusUploaded && i.Status != StatusError {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot start processing invoice in %s status", i.Status))
	}

	i.Status = StatusProcessing
	i.ErrorMessage = ""
	i.Touch()
	i.IncrementVersion()
	return nil
}

// MarkParsed records a successful extraction
func (i *Invoice) MarkParsed(result *NormalizedInvoice, raw map[string]any, parser string) error {
	if i.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot mark invoice as parsed in %s status", i.Status))
	}
	if result == nil {
		return shared.NewDomainError("INVALID_RESULT", "Normalized result cannot be nil")
	}

	i.applyNormalized(result, raw)
	i.ParserUsed = parser
	i.Status = StatusParsed
	i.ErrorMessage = ""
	i.Touch()
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceParsedEvent(i))
	return nil
}

// MarkFailed records an extraction failure
func (i *Invoice) MarkFailed(message string) error {
	if i.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "Cannot fail a completed invoice")
	}

	i.Status = StatusError
	i.ErrorMessage = message
	i.Touch()
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceFailedEvent(i, false))
	return nil
}

// Reparse replaces the normalized fields of an already parsed invoice.
// The status is left untouched.
func (i *Invoice) Reparse(result *NormalizedInvoice, raw map[string]any) error {
	if !i.Status.HasParsedData() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot reprocess invoice in %s status", i.Status))
	}
	if result == nil {
		return shared.NewDomainError("INVALID_RESULT", "Normalized result cannot be nil")
	}

	i.applyNormalized(result, raw)
	i.Touch()
	i.IncrementVersion()
	return nil
}

// CompleteWithVendorBill records the vendor bill created in the accounting system
func (i *Invoice) CompleteWithVendorBill(vendorBillID string) error {
	if i.Status != StatusParsed {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot create vendor bill. Invoice status is %s", i.Status))
	}
	if strings.TrimSpace(vendorBillID) == "" {
		return shared.NewDomainError("INVALID_VENDOR_BILL", "Vendor bill ID cannot be empty")
	}

	i.VendorBillID = vendorBillID
	i.Status = StatusCompleted
	i.Touch()
	i.IncrementVersion()

	i.AddDomainEvent(NewVendorBillCreatedEvent(i))
	return nil
}

// AssignVendorMapping associates the invoice with a vendor mapping
func (i *Invoice) AssignVendorMapping(mappingID uuid.UUID) {
	i.VendorMappingID = &mappingID
	i.Touch()
	i.IncrementVersion()
}

// ClearVendorMapping removes the vendor mapping association
func (i *Invoice) ClearVendorMapping() {
	i.VendorMappingID = nil
	i.Touch()
	i.IncrementVersion()
}

// IsStuck reports whether the invoice has been processing for longer than timeout
func (i *Invoice) IsStuck(now time.Time, timeout time.Duration) bool {
	if i.Status != StatusProcessing {
		return false
	}
	since := i.UpdatedAt
	if since.IsZero() {
		since = i.CreatedAt
	}
	return now.Sub(since) > timeout
}

// TimeOut fails an invoice whose processing was abandoned
func (i *Invoice) TimeOut() error {
	if i.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot time out invoice in %s status", i.Status))
	}

	i.Status = StatusError
	i.ErrorMessage = ProcessingTimeoutMessage
	i.Touch()
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceFailedEvent(i, true))
	return nil
}

// RawExtraction returns the stored raw vendor response, or nil
func (i *Invoice) RawExtraction() map[string]any {
	if i.ParsedData == nil {
		return nil
	}
	return i.ParsedData.RawExtraction
}

// Normalized returns the stored normalized result, or nil
func (i *Invoice) Normalized() *NormalizedInvoice {
	if i.ParsedData == nil {
		return nil
	}
	return i.ParsedData.Normalized
}

func (i *Invoice) applyNormalized(result *NormalizedInvoice, raw map[string]any) {
	i.VendorName = result.VendorName
	i.InvoiceNumber = result.InvoiceNumber
	if d, ok := ParseDate(result.InvoiceDate); ok {
		i.InvoiceDate = &d
	}
	if d, ok := ParseDate(result.DueDate); ok {
		i.DueDate = &d
	}
	i.TotalAmount = result.TotalAmount
	i.ParsedData = &ParsedData{
		Normalized:    result,
		RawExtraction: raw,
	}

	items := make([]LineItem, 0, len(result.LineItems))
	for _, data := range result.LineItems {
		items = append(items, NewLineItem(i.ID, data))
	}
	i.LineItems = items
}

// ParseDate parses a YYYY-MM-DD date. Empty or malformed values return false.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
