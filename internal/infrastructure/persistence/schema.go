package persistence

import (
	"gorm.io/gorm"

	"github.com/invoiceflow/backend/internal/infrastructure/persistence/models"
)

// AutoMigrate creates the schema from the persistence models.
// Postgres deployments use the versioned SQL migrations instead; this serves sqlite.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.VendorMappingModel{},
		&models.InvoiceModel{},
		&models.LineItemModel{},
	)
}
