package ocr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
)

const extractionSchemaURL = "extraction.schema.json"

// extractionSchema accepts any non-empty object whose line lists, when present, are arrays
const extractionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "minProperties": 1,
  "properties": {
    "line_items":    {"type": "array"},
    "items":         {"type": "array"},
    "lines":         {"type": "array"},
    "invoice_items": {"type": "array"}
  }
}`

var _ invoiceapp.ExtractionValidator = (*ExtractionSchema)(nil)

// ExtractionSchema decides whether a parser extraction is usable
type ExtractionSchema struct {
	schema *jsonschema.Schema
}

// NewExtractionSchema compiles the extraction schema
func NewExtractionSchema() (*ExtractionSchema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(extractionSchemaURL, strings.NewReader(extractionSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(extractionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &ExtractionSchema{schema: schema}, nil
}

// Validate checks the extraction against the schema
func (s *ExtractionSchema) Validate(raw map[string]any) error {
	if raw == nil {
		return errors.New("extraction is empty")
	}

	// Round-trip so every value has a plain JSON type the validator understands
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}

	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("extraction does not match schema: %w", err)
	}
	return nil
}
