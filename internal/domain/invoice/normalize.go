package invoice

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// fallbackProjectNumber catches "PN 1234" style references missed by the mapping patterns
var fallbackProjectNumber = regexp.MustCompile(`PN:?\s*(\d+)`)

var numericLineItemFields = map[string]bool{
	FieldQuantity:  true,
	FieldUnitPrice: true,
	FieldAmount:    true,
	FieldTax:       true,
}

// NormalizedInvoice is the canonical invoice shape produced from any vendor extraction
type NormalizedInvoice struct {
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	DueDate       string          `json:"due_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	LineItems     []LineItemData  `json:"line_items"`
	RawResponse   map[string]any  `json:"raw_response,omitempty"`
}

// VendorNameOf extracts the vendor name from an intermediate invoice document
func VendorNameOf(data map[string]any) string {
	if v, ok := data["vendor_name"]; ok && !isEmpty(v) {
		return stringify(v)
	}
	switch vendor := data["vendor"].(type) {
	case map[string]any:
		if n, ok := vendor["name"]; ok {
			return stringify(n)
		}
	case string:
		return vendor
	}
	return ""
}

// Normalize maps an intermediate invoice document onto the canonical shape
// using the given vendor mapping. A nil mapping means the default mapping.
//
// For each field, the mapping's source keys are tried in order and the
// canonical key produced by TransformExtraction is tried last.
func Normalize(data map[string]any, mapping *VendorMapping) *NormalizedInvoice {
	if mapping == nil {
		mapping = DefaultVendorMapping()
	}
	if data == nil {
		data = map[string]any{}
	}
	fields := mapping.FieldMappings

	result := &NormalizedInvoice{
		VendorName:  VendorNameOf(data),
		TotalAmount: decimal.Zero,
		LineItems:   make([]LineItemData, 0),
		RawResponse: data,
	}

	if v, ok := pick(data, fields.VendorName, ""); ok {
		result.VendorName = stringify(v)
	}
	if v, ok := pick(data, fields.InvoiceNumber, "invoice_number"); ok {
		result.InvoiceNumber = stringify(v)
	}
	if v, ok := pick(data, fields.InvoiceDate, "invoice_date"); ok {
		result.InvoiceDate = stringify(v)
	}
	if v, ok := pick(data, fields.DueDate, "due_date"); ok {
		result.DueDate = stringify(v)
	}
	if v, ok := pick(data, fields.TotalAmount, "total_amount"); ok {
		result.TotalAmount = toDecimal(v)
	}

	items, _ := data["line_items"].([]any)
	patterns := mapping.CompiledPatterns()
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		result.LineItems = append(result.LineItems, normalizeLineItem(item, fields.LineItems, patterns))
	}

	return result
}

func normalizeLineItem(item map[string]any, mappings LineItemFieldMappings, patterns map[string]*regexp.Regexp) LineItemData {
	values := map[string]any{
		FieldDescription:   "",
		FieldProjectNumber: "",
		FieldProjectName:   "",
		FieldActivityCode:  "",
		FieldQuantity:      1.0,
		FieldUnitPrice:     0.0,
		FieldAmount:        0.0,
		FieldTax:           0.0,
	}

	for _, field := range LineItemFields {
		if v, ok := pick(item, mappings.Sources(field), field); ok {
			values[field] = v
		}
	}

	description := stringify(values[FieldDescription])
	if description != "" {
		for _, field := range LineItemFields {
			re, ok := patterns[field]
			if !ok || !isBlank(values[field]) {
				continue
			}
			if m := re.FindStringSubmatch(description); len(m) > 1 && m[1] != "" {
				values[field] = m[1]
			}
		}
		if isBlank(values[FieldProjectNumber]) {
			if m := fallbackProjectNumber.FindStringSubmatch(description); len(m) > 1 {
				values[FieldProjectNumber] = m[1]
			}
		}
	}

	data := NewLineItemData()
	data.Description = description
	data.ProjectNumber = stringify(values[FieldProjectNumber])
	data.ProjectName = stringify(values[FieldProjectName])
	data.ActivityCode = stringify(values[FieldActivityCode])
	for field := range numericLineItemFields {
		d := toDecimal(values[field])
		switch field {
		case FieldQuantity:
			data.Quantity = d
		case FieldUnitPrice:
			data.UnitPrice = d
		case FieldAmount:
			data.Amount = d
		case FieldTax:
			data.Tax = d
		}
	}
	return data
}

// pick returns the first non-empty value among sources, then the canonical key
func pick(data map[string]any, sources []string, canonical string) (any, bool) {
	for _, key := range sources {
		if v, ok := lookup(data, key); ok && !isEmpty(v) {
			return v, true
		}
	}
	if canonical == "" {
		return nil, false
	}
	if v, ok := data[canonical]; ok && !isEmpty(v) {
		return v, true
	}
	return nil, false
}
