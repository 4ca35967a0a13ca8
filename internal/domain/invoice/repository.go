package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	Status        Status
	WithLineItems bool
}

// InvoiceRepository persists invoice aggregates together with their line items
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Invoice, error)
	// FindAll returns invoices newest first along with the unpaginated total
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)
	// FindStuck returns processing invoices last touched before the cutoff
	FindStuck(ctx context.Context, cutoff time.Time) ([]Invoice, error)
	// Save upserts the invoice and replaces its line items
	Save(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error)
	// ClearVendorMapping detaches every invoice from the given mapping
	ClearVendorMapping(ctx context.Context, mappingID uuid.UUID) error
}

// VendorMappingRepository persists vendor mappings
type VendorMappingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*VendorMapping, error)
	// FindAll returns every mapping ordered by vendor name
	FindAll(ctx context.Context) ([]VendorMapping, error)
	// FindActiveByName performs an exact, case-sensitive lookup among active mappings
	FindActiveByName(ctx context.Context, vendorName string) (*VendorMapping, error)
	FindAllActive(ctx context.Context) ([]VendorMapping, error)
	FindByName(ctx context.Context, vendorName string) (*VendorMapping, error)
	ExistsByName(ctx context.Context, vendorName string, excludeID *uuid.UUID) (bool, error)
	Save(ctx context.Context, mapping *VendorMapping) error
	Delete(ctx context.Context, id uuid.UUID) error
}
