package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceflow/backend/internal/domain/invoice"
)

// UploadInput is an uploaded invoice document
type UploadInput struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ListInvoicesFilter defines filtering options for invoice list queries
type ListInvoicesFilter struct {
	IncludeDetails bool   `form:"include_details"`
	Status         string `form:"status" binding:"omitempty,oneof=uploaded processing parsed error completed"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	PageSize       int    `form:"page_size" binding:"omitempty,min=1,max=1000"`
}

// DeleteInvoicesRequest is the body of a bulk delete
type DeleteInvoicesRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID                uuid.UUID                  `json:"id"`
	FileName          string                     `json:"file_name"`
	ContentType       string                     `json:"content_type,omitempty"`
	Status            string                     `json:"status"`
	VendorName        string                     `json:"vendor_name"`
	InvoiceNumber     string                     `json:"invoice_number"`
	InvoiceDate       *string                    `json:"invoice_date"`
	DueDate           *string                    `json:"due_date"`
	TotalAmount       decimal.Decimal            `json:"total_amount"`
	ParserUsed        string                     `json:"parser_used,omitempty"`
	ErrorMessage      string                     `json:"error_message,omitempty"`
	VendorBillID      string                     `json:"vendor_bill_id,omitempty"`
	VendorMappingID   *uuid.UUID                 `json:"vendor_mapping_id,omitempty"`
	HasDocument       bool                       `json:"has_document"`
	LineItems         []LineItemResponse         `json:"line_items,omitempty"`
	ParsedData        *invoice.NormalizedInvoice `json:"parsed_data,omitempty"`
	RawExtractionData map[string]any             `json:"raw_extraction_data,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	Version           int                        `json:"version"`
}

// LineItemResponse represents a line item in API responses
type LineItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	Description   string          `json:"description"`
	ProjectNumber string          `json:"project_number"`
	ProjectName   string          `json:"project_name"`
	ActivityCode  string          `json:"activity_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Amount        decimal.Decimal `json:"amount"`
	Tax           decimal.Decimal `json:"tax"`
}

// InvoiceDetailResponse is a single invoice with its extraction results
type InvoiceDetailResponse struct {
	Invoice           InvoiceResponse            `json:"invoice"`
	LineItems         []LineItemResponse         `json:"line_items"`
	ParsedData        *invoice.NormalizedInvoice `json:"parsed_data"`
	RawExtractionData map[string]any             `json:"raw_extraction_data"`
	ParserUsed        string                     `json:"parser_used"`
}

// InvoiceListResponse is a page of invoices
type InvoiceListResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// DeleteInvoicesResponse reports a bulk delete
type DeleteInvoicesResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

// VendorBillResponse reports a vendor bill pushed to accounting
type VendorBillResponse struct {
	InvoiceID    uuid.UUID `json:"invoice_id"`
	VendorBillID string    `json:"vendor_bill_id"`
	Status       string    `json:"status"`
}

// ApplyMappingResponse reports the outcome of applying a vendor mapping
type ApplyMappingResponse struct {
	Message     string                `json:"message"`
	Reprocessed bool                  `json:"reprocessed"`
	Invoice     InvoiceDetailResponse `json:"invoice"`
}

// DocumentURLResponse is a temporary download link for the archived document
type DocumentURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToInvoiceResponse converts a domain invoice to a response
func ToInvoiceResponse(inv *invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID,
		FileName:        inv.FileName,
		ContentType:     inv.ContentType,
		Status:          inv.Status.String(),
		VendorName:      inv.VendorName,
		InvoiceNumber:   inv.InvoiceNumber,
		InvoiceDate:     formatDate(inv.InvoiceDate),
		DueDate:         formatDate(inv.DueDate),
		TotalAmount:     inv.TotalAmount,
		ParserUsed:      inv.ParserUsed,
		ErrorMessage:    inv.ErrorMessage,
		VendorBillID:    inv.VendorBillID,
		VendorMappingID: inv.VendorMappingID,
		HasDocument:     inv.StorageKey != "",
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
		Version:         inv.Version,
	}
}

// ToInvoiceDetailsResponse converts a domain invoice to a response carrying line items and parsed data
func ToInvoiceDetailsResponse(inv *invoice.Invoice) InvoiceResponse {
	resp := ToInvoiceResponse(inv)
	resp.LineItems = toLineItemResponses(inv.LineItems)
	resp.ParsedData = inv.Normalized()
	resp.RawExtractionData = inv.RawExtraction()
	return resp
}

// ToInvoiceDetailResponse converts a domain invoice to the single invoice view
func ToInvoiceDetailResponse(inv *invoice.Invoice) InvoiceDetailResponse {
	return InvoiceDetailResponse{
		Invoice:           ToInvoiceResponse(inv),
		LineItems:         toLineItemResponses(inv.LineItems),
		ParsedData:        inv.Normalized(),
		RawExtractionData: inv.RawExtraction(),
		ParserUsed:        inv.ParserUsed,
	}
}

func toLineItemResponses(items []invoice.LineItem) []LineItemResponse {
	result := make([]LineItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, LineItemResponse{
			ID:            item.ID,
			Description:   item.Description,
			ProjectNumber: item.ProjectNumber,
			ProjectName:   item.ProjectName,
			ActivityCode:  item.ActivityCode,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Amount:        item.Amount,
			Tax:           item.Tax,
		})
	}
	return result
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(invoice.DateLayout)
	return &s
}

// ===================== Vendor Mappings =====================

// CreateVendorMappingRequest is the body for creating a vendor mapping
type CreateVendorMappingRequest struct {
	VendorName    string                 `json:"vendor_name" yaml:"vendor_name" binding:"required,max=255"`
	FieldMappings *invoice.FieldMappings `json:"field_mappings" yaml:"field_mappings"`
	RegexPatterns map[string]string      `json:"regex_patterns" yaml:"regex_patterns"`
	IsActive      *bool                  `json:"is_active" yaml:"is_active"`
}

// UpdateVendorMappingRequest is the body for updating a vendor mapping. Nil fields are left unchanged.
type UpdateVendorMappingRequest struct {
	VendorName    *string                `json:"vendor_name" binding:"omitempty,max=255"`
	FieldMappings *invoice.FieldMappings `json:"field_mappings"`
	RegexPatterns map[string]string      `json:"regex_patterns"`
	IsActive      *bool                  `json:"is_active"`
}

// VendorMappingResponse represents a vendor mapping in API responses
type VendorMappingResponse struct {
	ID            uuid.UUID             `json:"id"`
	VendorName    string                `json:"vendor_name"`
	FieldMappings invoice.FieldMappings `json:"field_mappings"`
	RegexPatterns map[string]string     `json:"regex_patterns"`
	IsActive      bool                  `json:"is_active"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Version       int                   `json:"version"`
}

// ToVendorMappingResponse converts a domain vendor mapping to a response
func ToVendorMappingResponse(m *invoice.VendorMapping) VendorMappingResponse {
	patterns := m.RegexPatterns
	if patterns == nil {
		patterns = map[string]string{}
	}
	return VendorMappingResponse{
		ID:            m.ID,
		VendorName:    m.VendorName,
		FieldMappings: m.FieldMappings,
		RegexPatterns: patterns,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Version:       m.Version,
	}
}
