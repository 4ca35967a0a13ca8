package cache

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
)

// cachedMapping is the serialized form of a vendor mapping
type cachedMapping struct {
	ID            uuid.UUID             `json:"id"`
	VendorName    string                `json:"vendor_name"`
	FieldMappings invoice.FieldMappings `json:"field_mappings"`
	RegexPatterns map[string]string     `json:"regex_patterns"`
	IsActive      bool                  `json:"is_active"`
	Version       int                   `json:"version"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func encodeMapping(m *invoice.VendorMapping) ([]byte, error) {
	return json.Marshal(cachedMapping{
		ID:            m.ID,
		VendorName:    m.VendorName,
		FieldMappings: m.FieldMappings,
		RegexPatterns: m.RegexPatterns,
		IsActive:      m.IsActive,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	})
}

func decodeMapping(data []byte) (*invoice.VendorMapping, error) {
	var c cachedMapping
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.RegexPatterns == nil {
		c.RegexPatterns = map[string]string{}
	}
	return &invoice.VendorMapping{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt},
			Version:    c.Version,
		},
		VendorName:    c.VendorName,
		FieldMappings: c.FieldMappings,
		RegexPatterns: c.RegexPatterns,
		IsActive:      c.IsActive,
	}, nil
}
