package invoice

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemData is a normalized line item before it is attached to an invoice
type LineItemData struct {
	Description   string          `json:"description"`
	ProjectNumber string          `json:"project_number"`
	ProjectName   string          `json:"project_name"`
	ActivityCode  string          `json:"activity_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Amount        decimal.Decimal `json:"amount"`
	Tax           decimal.Decimal `json:"tax"`
}

// NewLineItemData returns a line item carrying the normalization defaults
func NewLineItemData() LineItemData {
	return LineItemData{
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.Zero,
		Amount:    decimal.Zero,
		Tax:       decimal.Zero,
	}
}

// LineItem is a single line on an invoice
type LineItem struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	LineItemData
}

// NewLineItem creates a line item owned by the given invoice
func NewLineItem(invoiceID uuid.UUID, data LineItemData) LineItem {
	return LineItem{
		ID:           uuid.New(),
		InvoiceID:    invoiceID,
		LineItemData: data,
	}
}
