package ocr

import "slices"

// Keys that mark a chunk object as an invoice line
var xrayLineItemKeys = []string{"quantity", "qty", "unit_price", "rate", "amount", "line_total", "total_price"}

// Keys under which a chunk object may carry its own list of lines
var xrayLineListKeys = []string{"line_items", "items", "lines", "invoice_items"}

// FlattenXRay turns a GroundX X-Ray document into a flat extraction.
//
// Chunk json objects that look like invoice lines are collected under
// line_items; every other key/value pair becomes a header field, the first
// non-empty occurrence winning. The document fileSummary is kept.
func FlattenXRay(xray map[string]any) map[string]any {
	out := make(map[string]any)
	items := make([]any, 0)

	chunks, _ := xray["chunks"].([]any)
	for _, raw := range chunks {
		chunk, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, obj := range chunkObjects(chunk["json"]) {
			if nested, ok := nestedLines(obj); ok {
				items = append(items, nested...)
				mergeHeader(out, obj, true)
				continue
			}
			if isLineItem(obj) {
				items = append(items, obj)
				continue
			}
			mergeHeader(out, obj, false)
		}
	}

	if len(items) > 0 {
		out["line_items"] = items
	}
	if summary, ok := xray["fileSummary"]; ok && summary != nil {
		out["fileSummary"] = summary
	}
	return out
}

// chunkObjects returns the objects held by a chunk json value, which may be one object or a list
func chunkObjects(v any) []map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{val}
	case []any:
		objs := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				objs = append(objs, obj)
			}
		}
		return objs
	}
	return nil
}

func nestedLines(obj map[string]any) ([]any, bool) {
	for _, key := range xrayLineListKeys {
		if list, ok := obj[key].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func isLineItem(obj map[string]any) bool {
	if _, ok := obj["description"]; !ok {
		return false
	}
	for _, key := range xrayLineItemKeys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func mergeHeader(out, obj map[string]any, skipLineLists bool) {
	for k, v := range obj {
		if skipLineLists && slices.Contains(xrayLineListKeys, k) {
			continue
		}
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
}
