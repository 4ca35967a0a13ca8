package invoice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// lookup finds a value by key, falling back to a dot-separated path through nested objects
func lookup(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var current any = data
	for _, part := range strings.Split(key, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// isEmpty reports whether an extracted value counts as missing
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// isBlank is isEmpty extended to numeric zero, matching how line item gaps are detected
func isBlank(v any) bool {
	if isEmpty(v) {
		return true
	}
	switch n := v.(type) {
	case float64:
		return n == 0
	case int:
		return n == 0
	case decimal.Decimal:
		return n.IsZero()
	}
	return false
}

// stringify renders an extracted scalar as text
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	case decimal.Decimal:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(v)
}

// toDecimal converts an extracted value to a decimal.
// Strings that do not parse are reduced to their digits, a leading minus and
// the decimal point before a second attempt; anything else yields zero.
func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return n
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
		return decimal.Zero
	case string:
		return parseAmount(n)
	}
	return decimal.Zero
}

// parseAmount parses a monetary string such as "$1,234.50"
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}

	var b strings.Builder
	negative := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}
