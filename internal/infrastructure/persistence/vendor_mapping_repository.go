package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/persistence/models"
)

// GormVendorMappingRepository implements invoice.VendorMappingRepository using GORM
type GormVendorMappingRepository struct {
	db *gorm.DB
}

// NewGormVendorMappingRepository creates a new GormVendorMappingRepository
func NewGormVendorMappingRepository(db *gorm.DB) *GormVendorMappingRepository {
	return &GormVendorMappingRepository{db: db}
}

// FindByID finds a vendor mapping by its ID
func (r *GormVendorMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.VendorMapping, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindAll returns every mapping ordered by vendor name
func (r *GormVendorMappingRepository) FindAll(ctx context.Context) ([]invoice.VendorMapping, error) {
	return r.find(r.db.WithContext(ctx))
}

// FindActiveByName performs an exact lookup among active mappings
func (r *GormVendorMappingRepository) FindActiveByName(ctx context.Context, vendorName string) (*invoice.VendorMapping, error) {
	return r.first(r.db.WithContext(ctx).Where("vendor_name = ? AND is_active = ?", vendorName, true))
}

// FindAllActive returns every active mapping ordered by vendor name
func (r *GormVendorMappingRepository) FindAllActive(ctx context.Context) ([]invoice.VendorMapping, error) {
	return r.find(r.db.WithContext(ctx).Where("is_active = ?", true))
}

// FindByName finds a mapping by exact vendor name regardless of its active flag
func (r *GormVendorMappingRepository) FindByName(ctx context.Context, vendorName string) (*invoice.VendorMapping, error) {
	return r.first(r.db.WithContext(ctx).Where("vendor_name = ?", vendorName))
}

// ExistsByName checks whether another mapping already uses the vendor name
func (r *GormVendorMappingRepository) ExistsByName(ctx context.Context, vendorName string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.VendorMappingModel{}).Where("vendor_name = ?", vendorName)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a vendor mapping
func (r *GormVendorMappingRepository) Save(ctx context.Context, mapping *invoice.VendorMapping) error {
	model := models.VendorMappingModelFromDomain(mapping)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError("ALREADY_EXISTS", "A mapping for this vendor already exists")
	}
	return err
}

// Delete removes a vendor mapping
func (r *GormVendorMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.VendorMappingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormVendorMappingRepository) first(query *gorm.DB) (*invoice.VendorMapping, error) {
	var model models.VendorMappingModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormVendorMappingRepository) find(query *gorm.DB) ([]invoice.VendorMapping, error) {
	var rows []models.VendorMappingModel
	if err := query.Order("vendor_name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]invoice.VendorMapping, 0, len(rows))
	for i := range rows {
		result = append(result, *rows[i].ToDomain())
	}
	return result, nil
}

// Ensure GormVendorMappingRepository implements the interface
var _ invoice.VendorMappingRepository = (*GormVendorMappingRepository)(nil)
