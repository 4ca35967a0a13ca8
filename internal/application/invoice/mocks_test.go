package invoice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
)

// MockInvoiceRepository is a mock implementation of InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]invoice.Invoice, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindAll(ctx context.Context, filter invoice.InvoiceFilter) ([]invoice.Invoice, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]invoice.Invoice), args.Get(1).(int64), args.Error(2)
}

func (m *MockInvoiceRepository) FindStuck(ctx context.Context, cutoff time.Time) ([]invoice.Invoice, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockInvoiceRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) ClearVendorMapping(ctx context.Context, mappingID uuid.UUID) error {
	args := m.Called(ctx, mappingID)
	return args.Error(0)
}

// MockVendorMappingRepository is a mock implementation of VendorMappingRepository
type MockVendorMappingRepository struct {
	mock.Mock
}

func (m *MockVendorMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.VendorMapping, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.VendorMapping), args.Error(1)
}

func (m *MockVendorMappingRepository) FindAll(ctx context.Context) ([]invoice.VendorMapping, error) {
	args := m.Called(ctx)
	return args.Get(0).([]invoice.VendorMapping), args.Error(1)
}

func (m *MockVendorMappingRepository) FindActiveByName(ctx context.Context, vendorName string) (*invoice.VendorMapping, error) {
	args := m.Called(ctx, vendorName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.VendorMapping), args.Error(1)
}

func (m *MockVendorMappingRepository) FindAllActive(ctx context.Context) ([]invoice.VendorMapping, error) {
	args := m.Called(ctx)
	return args.Get(0).([]invoice.VendorMapping), args.Error(1)
}

func (m *MockVendorMappingRepository) FindByName(ctx context.Context, vendorName string) (*invoice.VendorMapping, error) {
	args := m.Called(ctx, vendorName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.VendorMapping), args.Error(1)
}

func (m *MockVendorMappingRepository) ExistsByName(ctx context.Context, vendorName string, excludeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, vendorName, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVendorMappingRepository) Save(ctx context.Context, mapping *invoice.VendorMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockVendorMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockDocumentParser is a mock implementation of DocumentParser
type MockDocumentParser struct {
	mock.Mock
	name       string
	configured bool
}

func newMockParser(name string) *MockDocumentParser {
	return &MockDocumentParser{name: name, configured: true}
}

func (m *MockDocumentParser) Name() string {
	return m.name
}

func (m *MockDocumentParser) Configured() bool {
	return m.configured
}

func (m *MockDocumentParser) Parse(ctx context.Context, doc Document) (*Extraction, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Extraction), args.Error(1)
}

// MockDocumentStorage is a mock implementation of DocumentStorage
type MockDocumentStorage struct {
	mock.Mock
}

func (m *MockDocumentStorage) Put(ctx context.Context, key, contentType string, content []byte) error {
	args := m.Called(ctx, key, contentType, content)
	return args.Error(0)
}

func (m *MockDocumentStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDocumentStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

// MockAccountingClient is a mock implementation of AccountingClient
type MockAccountingClient struct {
	mock.Mock
}

func (m *MockAccountingClient) CreateVendorBill(ctx context.Context, req VendorBillRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockExporter is a mock implementation of InvoiceExporter
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(invoices []invoice.Invoice) ([]byte, error) {
	args := m.Called(invoices)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockMappingResolver is a mock implementation of MappingResolver
type MockMappingResolver struct {
	mock.Mock
}

func (m *MockMappingResolver) Resolve(ctx context.Context, vendorName string) *invoice.VendorMapping {
	args := m.Called(ctx, vendorName)
	return args.Get(0).(*invoice.VendorMapping)
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

// mapCache is an in-memory VendorMappingCache for tests
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*invoice.VendorMapping
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*invoice.VendorMapping{}}
}

func (c *mapCache) Get(_ context.Context, name string) (*invoice.VendorMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[name]
	return m, ok
}

func (c *mapCache) Set(_ context.Context, name string, m *invoice.VendorMapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = m
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
	return nil
}

func (c *mapCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*invoice.VendorMapping{}
	return nil
}
