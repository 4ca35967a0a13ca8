package invoice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

// Line item field names that mappings and regex patterns may target
const (
	FieldDescription   = "description"
	FieldProjectNumber = "project_number"
	FieldProjectName   = "project_name"
	FieldActivityCode  = "activity_code"
	FieldQuantity      = "quantity"
	FieldUnitPrice     = "unit_price"
	FieldAmount        = "amount"
	FieldTax           = "tax"
)

// LineItemFields lists line item fields in the order patterns are applied
var LineItemFields = []string{
	FieldDescription,
	FieldProjectNumber,
	FieldProjectName,
	FieldActivityCode,
	FieldQuantity,
	FieldUnitPrice,
	FieldAmount,
	FieldTax,
}

// LineItemFieldMappings lists, per line item field, the source keys to try in order
type LineItemFieldMappings struct {
	Description   []string `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectNumber []string `json:"project_number,omitempty" yaml:"project_number,omitempty"`
	ProjectName   []string `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	ActivityCode  []string `json:"activity_code,omitempty" yaml:"activity_code,omitempty"`
	Quantity      []string `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	UnitPrice     []string `json:"unit_price,omitempty" yaml:"unit_price,omitempty"`
	Amount        []string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Tax           []string `json:"tax,omitempty" yaml:"tax,omitempty"`
}

// Sources returns the source keys configured for a line item field
func (m LineItemFieldMappings) Sources(field string) []string {
	switch field {
	case FieldDescription:
		return m.Description
	case FieldProjectNumber:
		return m.ProjectNumber
	case FieldProjectName:
		return m.ProjectName
	case FieldActivityCode:
		return m.ActivityCode
	case FieldQuantity:
		return m.Quantity
	case FieldUnitPrice:
		return m.UnitPrice
	case FieldAmount:
		return m.Amount
	case FieldTax:
		return m.Tax
	}
	return nil
}

// IsEmpty reports whether no line item field has sources
func (m LineItemFieldMappings) IsEmpty() bool {
	for _, f := range LineItemFields {
		if len(m.Sources(f)) > 0 {
			return false
		}
	}
	return true
}

// FieldMappings lists, per invoice header field, the source keys to try in order.
// Source keys may use dot notation to reach into nested objects.
type FieldMappings struct {
	VendorName    []string              `json:"vendor_name,omitempty" yaml:"vendor_name,omitempty"`
	InvoiceNumber []string              `json:"invoice_number,omitempty" yaml:"invoice_number,omitempty"`
	InvoiceDate   []string              `json:"invoice_date,omitempty" yaml:"invoice_date,omitempty"`
	DueDate       []string              `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	TotalAmount   []string              `json:"total_amount,omitempty" yaml:"total_amount,omitempty"`
	LineItems     LineItemFieldMappings `json:"line_items" yaml:"line_items"`
}

// IsEmpty reports whether the mapping configures no sources at all
func (m FieldMappings) IsEmpty() bool {
	return len(m.VendorName) == 0 &&
		len(m.InvoiceNumber) == 0 &&
		len(m.InvoiceDate) == 0 &&
		len(m.DueDate) == 0 &&
		len(m.TotalAmount) == 0 &&
		m.LineItems.IsEmpty()
}

// DefaultFieldMappings returns the built-in source keys used when a vendor has no mapping
func DefaultFieldMappings() FieldMappings {
	return FieldMappings{
		InvoiceNumber: []string{"invoice_number", "invoice #", "invoice no", "bill number", "bill #", "reference number"},
		InvoiceDate:   []string{"date", "invoice date", "bill date", "issue date"},
		DueDate:       []string{"due date", "payment due", "due by", "payment due date"},
		TotalAmount:   []string{"total", "total amount", "amount due", "balance due", "grand total", "invoice total"},
		LineItems: LineItemFieldMappings{
			Description:   []string{"description", "item", "service", "product", "details"},
			ProjectNumber: []string{"project number", "project #", "project", "job number", "job #", "job code"},
			ProjectName:   []string{"project name", "job name", "job", "project description"},
			ActivityCode:  []string{"activity code", "code", "activity", "task code", "service code"},
			Quantity:      []string{"quantity", "qty", "units", "hours", "count"},
			UnitPrice:     []string{"unit price", "rate", "unit cost", "price", "cost", "price per unit"},
			Amount:        []string{"amount", "total", "line total", "extended", "subtotal", "line amount"},
			Tax:           []string{"tax", "vat", "gst", "sales tax", "tax amount"},
		},
	}
}

// DefaultRegexPatterns returns the built-in description patterns
func DefaultRegexPatterns() map[string]string {
	return map[string]string{
		FieldProjectNumber: `(?:Project|PN|Job)\s*(?:Number|#|No\.?|ID)?\s*[:=\s]\s*([A-Z0-9-]+)`,
		FieldActivityCode:  `(?:Activity|Task)\s*(?:Code|#|No\.?)?\s*[:=\s]\s*([A-Z0-9-]+)`,
	}
}

// VendorMapping holds vendor-specific extraction rules
type VendorMapping struct {
	shared.BaseAggregateRoot
	VendorName    string
	FieldMappings FieldMappings
	RegexPatterns map[string]string
	IsActive      bool
}

// NewVendorMapping creates an active vendor mapping.
// Empty field mappings fall back to the defaults.
func NewVendorMapping(vendorName string, fields FieldMappings, patterns map[string]string) (*VendorMapping, error) {
	vendorName = strings.TrimSpace(vendorName)
	if err := validateVendorName(vendorName); err != nil {
		return nil, err
	}
	if fields.IsEmpty() {
		fields = DefaultFieldMappings()
	}
	if patterns == nil {
		patterns = map[string]string{}
	}
	if err := ValidateRegexPatterns(patterns); err != nil {
		return nil, err
	}

	return &VendorMapping{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		VendorName:        vendorName,
		FieldMappings:     fields,
		RegexPatterns:     patterns,
		IsActive:          true,
	}, nil
}

// DefaultVendorMapping returns the built-in mapping. It has a nil ID and is never persisted.
func DefaultVendorMapping() *VendorMapping {
	return &VendorMapping{
		FieldMappings: DefaultFieldMappings(),
		RegexPatterns: DefaultRegexPatterns(),
		IsActive:      true,
	}
}

// IsDefault reports whether this is the built-in mapping
func (m *VendorMapping) IsDefault() bool {
	return m.ID == uuid.Nil
}

// Rename changes the vendor name the mapping applies to
func (m *VendorMapping) Rename(vendorName string) error {
	vendorName = strings.TrimSpace(vendorName)
	if err := validateVendorName(vendorName); err != nil {
		return err
	}
	m.VendorName = vendorName
	m.Touch()
	m.IncrementVersion()
	return nil
}

// UpdateRules replaces the field mappings and regex patterns
func (m *VendorMapping) UpdateRules(fields FieldMappings, patterns map[string]string) error {
	if patterns == nil {
		patterns = map[string]string{}
	}
	if err := ValidateRegexPatterns(patterns); err != nil {
		return err
	}
	m.FieldMappings = fields
	m.RegexPatterns = patterns
	m.Touch()
	m.IncrementVersion()
	return nil
}

// Activate enables the mapping for vendor lookups
func (m *VendorMapping) Activate() {
	if m.IsActive {
		return
	}
	m.IsActive = true
	m.Touch()
	m.IncrementVersion()
}

// Deactivate excludes the mapping from vendor lookups
func (m *VendorMapping) Deactivate() {
	if !m.IsActive {
		return
	}
	m.IsActive = false
	m.Touch()
	m.IncrementVersion()
}

// CompiledPatterns compiles the regex patterns keyed by line item field.
// Invalid patterns are skipped; they are rejected on write.
func (m *VendorMapping) CompiledPatterns() map[string]*regexp.Regexp {
	compiled := make(map[string]*regexp.Regexp, len(m.RegexPatterns))
	for field, pattern := range m.RegexPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil || re.NumSubexp() < 1 {
			continue
		}
		compiled[field] = re
	}
	return compiled
}

// ValidateRegexPatterns checks that every pattern compiles and has a capture group
func ValidateRegexPatterns(patterns map[string]string) error {
	for field, pattern := range patterns {
		if strings.TrimSpace(field) == "" {
			return shared.NewDomainError("INVALID_REGEX_PATTERN", "Regex pattern field name cannot be empty")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return shared.NewDomainError("INVALID_REGEX_PATTERN",
				fmt.Sprintf("Invalid regex pattern for %s: %v", field, err))
		}
		if re.NumSubexp() < 1 {
			return shared.NewDomainError("INVALID_REGEX_PATTERN",
				fmt.Sprintf("Regex pattern for %s must contain a capture group", field))
		}
	}
	return nil
}

func validateVendorName(name string) error {
	if name == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Vendor name is required")
	}
	if len(name) > 255 {
		return shared.NewDomainError("VALIDATION_ERROR", "Vendor name cannot exceed 255 characters")
	}
	return nil
}
