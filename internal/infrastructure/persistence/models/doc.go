// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free of ORM
// concerns.
//
// Each model provides TableName, ToDomain and FromDomain. JSON payloads (parsed data,
// field mappings, regex patterns) are stored as serialized text in jsonb columns.
package models
