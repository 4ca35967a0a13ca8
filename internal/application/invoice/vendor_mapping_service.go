package invoice

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
)

// ErrDuplicateVendorMapping is returned when another mapping already covers the vendor
var ErrDuplicateVendorMapping = shared.NewDomainError("ALREADY_EXISTS", "A mapping for this vendor already exists")

// VendorMappingService manages vendor mappings and resolves them for extracted vendor names
type VendorMappingService struct {
	mappingRepo invoice.VendorMappingRepository
	invoiceRepo invoice.InvoiceRepository
	cache       VendorMappingCache
	logger      *zap.Logger
}

// VendorMappingServiceOption is a functional option for configuring VendorMappingService
type VendorMappingServiceOption func(*VendorMappingService)

// WithMappingCache caches resolved mappings by vendor name
func WithMappingCache(cache VendorMappingCache) VendorMappingServiceOption {
	return func(s *VendorMappingService) {
		s.cache = cache
	}
}

// WithMappingLogger sets the service logger
func WithMappingLogger(logger *zap.Logger) VendorMappingServiceOption {
	return func(s *VendorMappingService) {
		s.logger = logger
	}
}

// NewVendorMappingService creates a new VendorMappingService
func NewVendorMappingService(
	mappingRepo invoice.VendorMappingRepository,
	invoiceRepo invoice.InvoiceRepository,
	opts ...VendorMappingServiceOption,
) *VendorMappingService {
	s := &VendorMappingService{
		mappingRepo: mappingRepo,
		invoiceRepo: invoiceRepo,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every vendor mapping ordered by vendor name
func (s *VendorMappingService) List(ctx context.Context) ([]VendorMappingResponse, error) {
	mappings, err := s.mappingRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]VendorMappingResponse, 0, len(mappings))
	for i := range mappings {
		result = append(result, ToVendorMappingResponse(&mappings[i]))
	}
	return result, nil
}

// Get returns a vendor mapping by ID
func (s *VendorMappingService) Get(ctx context.Context, id uuid.UUID) (*VendorMappingResponse, error) {
	mapping, err := s.mappingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToVendorMappingResponse(mapping)
	return &resp, nil
}

// Create adds a vendor mapping. Missing field mappings default to the built-in ones.
func (s *VendorMappingService) Create(ctx context.Context, req CreateVendorMappingRequest) (*VendorMappingResponse, error) {
	name := strings.TrimSpace(req.VendorName)
	exists, err := s.mappingRepo.ExistsByName(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateVendorMapping
	}

	var fields invoice.FieldMappings
	if req.FieldMappings != nil {
		fields = *req.FieldMappings
	}
	mapping, err := invoice.NewVendorMapping(name, fields, req.RegexPatterns)
	if err != nil {
		return nil, err
	}
	if req.IsActive != nil && !*req.IsActive {
		mapping.Deactivate()
	}

	if err := s.mappingRepo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	s.logger.Info("vendor mapping created",
		zap.String("mapping_id", mapping.ID.String()),
		zap.String("vendor_name", mapping.VendorName),
	)
	resp := ToVendorMappingResponse(mapping)
	return &resp, nil
}

// Update changes a vendor mapping. Nil request fields are left unchanged.
func (s *VendorMappingService) Update(ctx context.Context, id uuid.UUID, req UpdateVendorMappingRequest) (*VendorMappingResponse, error) {
	mapping, err := s.mappingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.VendorName != nil {
		name := strings.TrimSpace(*req.VendorName)
		if name != mapping.VendorName {
			exists, err := s.mappingRepo.ExistsByName(ctx, name, &mapping.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrDuplicateVendorMapping
			}
		}
		if err := mapping.Rename(name); err != nil {
			return nil, err
		}
	}

	if req.FieldMappings != nil || req.RegexPatterns != nil {
		fields := mapping.FieldMappings
		if req.FieldMappings != nil {
			fields = *req.FieldMappings
		}
		patterns := mapping.RegexPatterns
		if req.RegexPatterns != nil {
			patterns = req.RegexPatterns
		}
		if err := mapping.UpdateRules(fields, patterns); err != nil {
			return nil, err
		}
	}

	if req.IsActive != nil {
		if *req.IsActive {
			mapping.Activate()
		} else {
			mapping.Deactivate()
		}
	}

	if err := s.mappingRepo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	s.logger.Info("vendor mapping updated", zap.String("mapping_id", mapping.ID.String()))
	resp := ToVendorMappingResponse(mapping)
	return &resp, nil
}

// Delete removes a vendor mapping and detaches it from invoices
func (s *VendorMappingService) Delete(ctx context.Context, id uuid.UUID) error {
	mapping, err := s.mappingRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.invoiceRepo.ClearVendorMapping(ctx, mapping.ID); err != nil {
		return err
	}
	if err := s.mappingRepo.Delete(ctx, mapping.ID); err != nil {
		return err
	}
	s.invalidate(ctx)

	s.logger.Info("vendor mapping deleted",
		zap.String("mapping_id", mapping.ID.String()),
		zap.String("vendor_name", mapping.VendorName),
	)
	return nil
}

// Upsert creates the mapping or updates the existing one with the same vendor name.
// It reports whether a new mapping was created.
func (s *VendorMappingService) Upsert(ctx context.Context, req CreateVendorMappingRequest) (*VendorMappingResponse, bool, error) {
	existing, err := s.mappingRepo.FindByName(ctx, strings.TrimSpace(req.VendorName))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	if existing == nil {
		resp, err := s.Create(ctx, req)
		return resp, err == nil, err
	}

	resp, err := s.Update(ctx, existing.ID, UpdateVendorMappingRequest{
		FieldMappings: req.FieldMappings,
		RegexPatterns: req.RegexPatterns,
		IsActive:      req.IsActive,
	})
	return resp, false, err
}

// Resolve picks the mapping for a vendor name: an exact active match, then a
// case-insensitive active match, then the default mapping. It never fails;
// lookup errors fall back to the default mapping.
func (s *VendorMappingService) Resolve(ctx context.Context, vendorName string) *invoice.VendorMapping {
	vendorName = strings.TrimSpace(vendorName)
	if vendorName == "" {
		return invoice.DefaultVendorMapping()
	}

	if s.cache != nil {
		if mapping, ok := s.cache.Get(ctx, vendorName); ok {
			return mapping
		}
	}

	mapping, err := s.lookup(ctx, vendorName)
	if err != nil {
		s.logger.Warn("vendor mapping lookup failed, using default mapping",
			zap.String("vendor_name", vendorName),
			zap.Error(err),
		)
		return invoice.DefaultVendorMapping()
	}
	if mapping == nil {
		mapping = invoice.DefaultVendorMapping()
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, vendorName, mapping); err != nil {
			s.logger.Debug("failed to cache vendor mapping", zap.String("vendor_name", vendorName), zap.Error(err))
		}
	}
	return mapping
}

func (s *VendorMappingService) lookup(ctx context.Context, vendorName string) (*invoice.VendorMapping, error) {
	mapping, err := s.mappingRepo.FindActiveByName(ctx, vendorName)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	active, err := s.mappingRepo.FindAllActive(ctx)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	folded := fold.String(vendorName)
	for i := range active {
		if fold.String(active[i].VendorName) == folded {
			return &active[i], nil
		}
	}
	return nil, nil
}

func (s *VendorMappingService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("failed to invalidate vendor mapping cache", zap.Error(err))
	}
}
