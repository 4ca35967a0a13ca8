package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
)

// MockInvoiceUseCases implements InvoiceUseCases for testing
type MockInvoiceUseCases struct {
	mock.Mock
}

func (m *MockInvoiceUseCases) Upload(ctx context.Context, in invoiceapp.UploadInput) (*invoiceapp.InvoiceDetailResponse, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.InvoiceDetailResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) Get(ctx context.Context, id uuid.UUID) (*invoiceapp.InvoiceDetailResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.InvoiceDetailResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) List(ctx context.Context, filter invoiceapp.ListInvoicesFilter) (*invoiceapp.InvoiceListResponse, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.InvoiceListResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockInvoiceUseCases) DeleteMany(ctx context.Context, ids []uuid.UUID) (*invoiceapp.DeleteInvoicesResponse, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.DeleteInvoicesResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) CreateVendorBill(ctx context.Context, id uuid.UUID) (*invoiceapp.VendorBillResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.VendorBillResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) ApplyMapping(ctx context.Context, invoiceID, mappingID uuid.UUID) (*invoiceapp.ApplyMappingResponse, error) {
	args := m.Called(ctx, invoiceID, mappingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.ApplyMappingResponse), args.Error(1)
}

func (m *MockInvoiceUseCases) Export(ctx context.Context, filter invoiceapp.ListInvoicesFilter) ([]byte, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockInvoiceUseCases) DocumentURL(ctx context.Context, id uuid.UUID) (*invoiceapp.DocumentURLResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.DocumentURLResponse), args.Error(1)
}

// MockVendorMappingUseCases implements VendorMappingUseCases for testing
type MockVendorMappingUseCases struct {
	mock.Mock
}

func (m *MockVendorMappingUseCases) List(ctx context.Context) ([]invoiceapp.VendorMappingResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]invoiceapp.VendorMappingResponse), args.Error(1)
}

func (m *MockVendorMappingUseCases) Get(ctx context.Context, id uuid.UUID) (*invoiceapp.VendorMappingResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.VendorMappingResponse), args.Error(1)
}

func (m *MockVendorMappingUseCases) Create(ctx context.Context, req invoiceapp.CreateVendorMappingRequest) (*invoiceapp.VendorMappingResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.VendorMappingResponse), args.Error(1)
}

func (m *MockVendorMappingUseCases) Update(ctx context.Context, id uuid.UUID, req invoiceapp.UpdateVendorMappingRequest) (*invoiceapp.VendorMappingResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.VendorMappingResponse), args.Error(1)
}

func (m *MockVendorMappingUseCases) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
