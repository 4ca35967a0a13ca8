package invoice

import "github.com/shopspring/decimal"

// Keys that may wrap the actual extraction payload in a vendor response
var wrapperKeys = []string{"data", "document", "invoice", "results", "content", "extraction"}

// Keys copied from the outer response into an unwrapped payload when missing
var carriedKeys = []string{"id", "job_id", "status", "document_id"}

var (
	vendorKeys        = []string{"vendor_name", "vendor", "supplier", "supplier_name", "from_company", "company", "company_name"}
	invoiceNumberKeys = []string{"invoice_number", "id", "invoice_id", "number", "document_number"}
	invoiceDateKeys   = []string{"invoice_date", "date", "issue_date"}
	dueDateKeys       = []string{"due_date", "payment_due", "payment_due_date"}
	totalKeys         = []string{"total_amount", "total", "amount", "grand_total"}
	lineItemKeys      = []string{"line_items", "items", "lines", "invoice_items"}
)

// TransformExtraction reshapes a raw vendor extraction into the intermediate
// invoice document consumed by Normalizer. The raw map is not modified.
//
// The result keeps every key of the unwrapped payload so vendor mappings can
// reference source fields directly, and sets the canonical keys vendor_name,
// vendor, invoice_number, invoice_date, due_date, total_amount, line_items and
// file_name.
func TransformExtraction(raw map[string]any, fileName string) map[string]any {
	payload := unwrap(raw)

	out := make(map[string]any, len(payload)+8)
	for k, v := range payload {
		out[k] = v
	}

	vendorName := pickVendorName(payload)
	if vendorName != "" {
		out["vendor_name"] = vendorName
		out["vendor"] = map[string]any{"name": vendorName}
	} else {
		out["vendor_name"] = nil
		out["vendor"] = map[string]any{}
	}

	out["invoice_number"] = nil
	if v, ok := firstPresent(payload, invoiceNumberKeys); ok {
		out["invoice_number"] = stringify(v)
	}

	out["invoice_date"] = nil
	if v, ok := firstPresent(payload, invoiceDateKeys); ok {
		out["invoice_date"] = v
	}

	out["due_date"] = nil
	if v, ok := firstPresent(payload, dueDateKeys); ok {
		out["due_date"] = v
	}

	out["total_amount"] = pickTotal(payload)

	items := []any{}
	for _, key := range lineItemKeys {
		if list, ok := payload[key].([]any); ok {
			items = list
			break
		}
	}
	out["line_items"] = items
	out["file_name"] = fileName

	return out
}

func unwrap(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	for _, key := range wrapperKeys {
		v, ok := raw[key]
		if !ok || isEmpty(v) {
			continue
		}
		inner, ok := v.(map[string]any)
		if !ok || len(inner) == 0 {
			continue
		}

		payload := make(map[string]any, len(inner)+len(carriedKeys))
		for k, val := range inner {
			payload[k] = val
		}
		for _, carried := range carriedKeys {
			if val, ok := raw[carried]; ok {
				if _, exists := payload[carried]; !exists {
					payload[carried] = val
				}
			}
		}
		return payload
	}
	return raw
}

func pickVendorName(payload map[string]any) string {
	for _, key := range vendorKeys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		var name string
		switch val := v.(type) {
		case map[string]any:
			if n, ok := val["name"]; ok {
				name = stringify(n)
			}
		case string:
			name = val
		}
		if name != "" {
			return name
		}
	}
	return ""
}

func pickTotal(payload map[string]any) any {
	for _, key := range totalKeys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch v.(type) {
		case string, float64, float32, int, int64:
			return toDecimal(v)
		}
		return decimal.Zero
	}
	return decimal.Zero
}

// firstPresent returns the first non-null value among keys
func firstPresent(payload map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := payload[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
