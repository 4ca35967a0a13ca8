package models

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/domain/invoice"
)

// VendorMappingModel is the persistence model for the VendorMapping aggregate root
type VendorMappingModel struct {
	AggregateModel
	VendorName        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	FieldMappingsJSON string `gorm:"column:field_mappings;type:jsonb;not null"`
	RegexPatternsJSON string `gorm:"column:regex_patterns;type:jsonb"`
	IsActive          bool   `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (VendorMappingModel) TableName() string {
	return "vendor_mappings"
}

// ToDomain converts the persistence model to a domain VendorMapping
func (m *VendorMappingModel) ToDomain() *invoice.VendorMapping {
	mapping := &invoice.VendorMapping{
		BaseAggregateRoot: m.ToAggregateRoot(),
		VendorName:        m.VendorName,
		RegexPatterns:     map[string]string{},
		IsActive:          m.IsActive,
	}

	if m.FieldMappingsJSON != "" {
		if err := json.Unmarshal([]byte(m.FieldMappingsJSON), &mapping.FieldMappings); err != nil {
			modelLogger().Warn("failed to parse field_mappings JSON",
				zap.String("vendor_name", m.VendorName),
				zap.Error(err))
		}
	}
	if m.RegexPatternsJSON != "" && m.RegexPatternsJSON != "{}" {
		if err := json.Unmarshal([]byte(m.RegexPatternsJSON), &mapping.RegexPatterns); err != nil {
			modelLogger().Warn("failed to parse regex_patterns JSON",
				zap.String("vendor_name", m.VendorName),
				zap.Error(err))
		}
	}
	return mapping
}

// FromDomain populates the persistence model from a domain VendorMapping
func (m *VendorMappingModel) FromDomain(mapping *invoice.VendorMapping) {
	m.FromDomainAggregateRoot(mapping.BaseAggregateRoot)
	m.VendorName = mapping.VendorName
	m.IsActive = mapping.IsActive

	if b, err := json.Marshal(mapping.FieldMappings); err == nil {
		m.FieldMappingsJSON = string(b)
	} else {
		m.FieldMappingsJSON = "{}"
	}

	patterns := mapping.RegexPatterns
	if patterns == nil {
		patterns = map[string]string{}
	}
	if b, err := json.Marshal(patterns); err == nil {
		m.RegexPatternsJSON = string(b)
	} else {
		m.RegexPatternsJSON = "{}"
	}
}

// VendorMappingModelFromDomain creates a new persistence model from a domain VendorMapping
func VendorMappingModelFromDomain(mapping *invoice.VendorMapping) *VendorMappingModel {
	m := &VendorMappingModel{}
	m.FromDomain(mapping)
	return m
}
