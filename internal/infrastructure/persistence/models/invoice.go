package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/domain/invoice"
)

// modelLogger resolves the global logger on each call so it follows zap.ReplaceGlobals
func modelLogger() *zap.Logger {
	return zap.L().Named("invoice.models")
}

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	AggregateModel
	FileName        string          `gorm:"type:varchar(255);not null"`
	ContentType     string          `gorm:"type:varchar(100);not null"`
	StorageKey      string          `gorm:"type:varchar(512)"`
	Status          invoice.Status  `gorm:"type:varchar(20);not null;index"`
	VendorName      string          `gorm:"type:varchar(255)"`
	InvoiceNumber   string          `gorm:"type:varchar(100)"`
	InvoiceDate     *time.Time      `gorm:"type:date"`
	DueDate         *time.Time      `gorm:"type:date"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ParsedDataJSON  string          `gorm:"column:parsed_data;type:jsonb"`
	ParserUsed      string          `gorm:"type:varchar(50)"`
	ErrorMessage    string          `gorm:"type:text"`
	VendorBillID    string          `gorm:"type:varchar(100)"`
	VendorMappingID *uuid.UUID      `gorm:"type:uuid;index"`
	LineItems       []LineItemModel `gorm:"foreignKey:InvoiceID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
// Line items are included only when they were loaded.
func (m *InvoiceModel) ToDomain() *invoice.Invoice {
	inv := &invoice.Invoice{
		BaseAggregateRoot: m.ToAggregateRoot(),
		FileName:          m.FileName,
		ContentType:       m.ContentType,
		StorageKey:        m.StorageKey,
		Status:            m.Status,
		VendorName:        m.VendorName,
		InvoiceNumber:     m.InvoiceNumber,
		InvoiceDate:       m.InvoiceDate,
		DueDate:           m.DueDate,
		TotalAmount:       m.TotalAmount,
		ParserUsed:        m.ParserUsed,
		ErrorMessage:      m.ErrorMessage,
		VendorBillID:      m.VendorBillID,
		VendorMappingID:   m.VendorMappingID,
		LineItems:         make([]invoice.LineItem, 0, len(m.LineItems)),
	}

	if m.ParsedDataJSON != "" {
		var parsed invoice.ParsedData
		if err := json.Unmarshal([]byte(m.ParsedDataJSON), &parsed); err != nil {
			modelLogger().Warn("failed to parse parsed_data JSON",
				zap.String("invoice_id", m.ID.String()),
				zap.Error(err))
		} else {
			inv.ParsedData = &parsed
		}
	}

	for i := range m.LineItems {
		inv.LineItems = append(inv.LineItems, m.LineItems[i].ToDomain())
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *invoice.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.FileName = inv.FileName
	m.ContentType = inv.ContentType
	m.StorageKey = inv.StorageKey
	m.Status = inv.Status
	m.VendorName = inv.VendorName
	m.InvoiceNumber = inv.InvoiceNumber
	m.InvoiceDate = inv.InvoiceDate
	m.DueDate = inv.DueDate
	m.TotalAmount = inv.TotalAmount
	m.ParserUsed = inv.ParserUsed
	m.ErrorMessage = inv.ErrorMessage
	m.VendorBillID = inv.VendorBillID
	m.VendorMappingID = inv.VendorMappingID

	m.ParsedDataJSON = ""
	if inv.ParsedData != nil {
		if b, err := json.Marshal(inv.ParsedData); err == nil {
			m.ParsedDataJSON = string(b)
		} else {
			modelLogger().Warn("failed to serialize parsed_data",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err))
		}
	}

	m.LineItems = make([]LineItemModel, 0, len(inv.LineItems))
	for i, item := range inv.LineItems {
		var lm LineItemModel
		lm.FromDomain(item, i)
		m.LineItems = append(m.LineItems, lm)
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *invoice.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// LineItemModel is the persistence model for an invoice line item
type LineItemModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position      int             `gorm:"not null;default:0"`
	Description   string          `gorm:"type:text"`
	ProjectNumber string          `gorm:"type:varchar(100)"`
	ProjectName   string          `gorm:"type:varchar(255)"`
	ActivityCode  string          `gorm:"type:varchar(100)"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:1"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Tax           decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (LineItemModel) TableName() string {
	return "invoice_line_items"
}

// ToDomain converts the persistence model to a domain LineItem
func (m *LineItemModel) ToDomain() invoice.LineItem {
	return invoice.LineItem{
		ID:        m.ID,
		InvoiceID: m.InvoiceID,
		LineItemData: invoice.LineItemData{
			Description:   m.Description,
			ProjectNumber: m.ProjectNumber,
			ProjectName:   m.ProjectName,
			ActivityCode:  m.ActivityCode,
			Quantity:      m.Quantity,
			UnitPrice:     m.UnitPrice,
			Amount:        m.Amount,
			Tax:           m.Tax,
		},
	}
}

// FromDomain populates the persistence model from a domain LineItem at the given position
func (m *LineItemModel) FromDomain(item invoice.LineItem, position int) {
	m.ID = item.ID
	m.InvoiceID = item.InvoiceID
	m.Position = position
	m.Description = item.Description
	m.ProjectNumber = item.ProjectNumber
	m.ProjectName = item.ProjectName
	m.ActivityCode = item.ActivityCode
	m.Quantity = item.Quantity
	m.UnitPrice = item.UnitPrice
	m.Amount = item.Amount
	m.Tax = item.Tax
}
