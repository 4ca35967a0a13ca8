package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements invoice.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func preloadLineItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds an invoice with its line items
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("LineItems", preloadLineItems).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds the invoices that exist among the given IDs, without line items
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]invoice.Invoice, error) {
	if len(ids) == 0 {
		return []invoice.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInvoices(rows), nil
}

// FindAll returns invoices matching the filter along with the unpaginated total.
// A PageSize of zero returns every matching invoice.
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter invoice.InvoiceFilter) ([]invoice.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", orderBy, orderDir)).Order("id " + orderDir)

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if filter.WithLineItems {
		query = query.Preload("LineItems", preloadLineItems)
	}

	var rows []models.InvoiceModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toInvoices(rows), total, nil
}

// FindStuck returns processing invoices not updated since the cutoff
func (r *GormInvoiceRepository) FindStuck(ctx context.Context, cutoff time.Time) ([]invoice.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", invoice.StatusProcessing, cutoff).
		Order("updated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toInvoices(rows), nil
}

// Save upserts the invoice and replaces its line items in one transaction
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	items := model.LineItems
	model.LineItems = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(model).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", model.ID).Delete(&models.LineItemModel{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// Delete removes an invoice and its line items
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItemModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.InvoiceModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// DeleteMany removes the given invoices and reports how many existed
func (r *GormInvoiceRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id IN ?", ids).Delete(&models.LineItemModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.InvoiceModel{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ClearVendorMapping detaches every invoice from the given mapping
func (r *GormInvoiceRepository) ClearVendorMapping(ctx context.Context, mappingID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("vendor_mapping_id = ?", mappingID).
		UpdateColumn("vendor_mapping_id", nil).Error
}

func toInvoices(rows []models.InvoiceModel) []invoice.Invoice {
	result := make([]invoice.Invoice, 0, len(rows))
	for i := range rows {
		result = append(result, *rows[i].ToDomain())
	}
	return result
}

// Ensure GormInvoiceRepository implements the interface
var _ invoice.InvoiceRepository = (*GormInvoiceRepository)(nil)
