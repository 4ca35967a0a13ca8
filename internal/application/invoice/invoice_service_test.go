package invoice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
)

type serviceFixture struct {
	invoices   *MockInvoiceRepository
	mappings   *MockVendorMappingRepository
	primary    *MockDocumentParser
	resolver   *MockMappingResolver
	storage    *MockDocumentStorage
	accounting *MockAccountingClient
	exporter   *MockExporter
	events     *recordingPublisher
	now        time.Time
	service    *InvoiceService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		invoices:   new(MockInvoiceRepository),
		mappings:   new(MockVendorMappingRepository),
		primary:    newMockParser("LlamaCloud"),
		resolver:   new(MockMappingResolver),
		storage:    new(MockDocumentStorage),
		accounting: new(MockAccountingClient),
		exporter:   new(MockExporter),
		events:     &recordingPublisher{},
		now:        time.Now(),
	}
	chain := NewParserChain([]DocumentParser{f.primary}, zap.NewNop())
	f.service = NewInvoiceService(f.invoices, f.mappings, chain, f.resolver,
		WithDocumentStorage(f.storage),
		WithAccountingClient(f.accounting),
		WithExporter(f.exporter),
		WithEventPublisher(f.events),
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func newProcessingInvoice(t *testing.T) *invoice.Invoice {
	t.Helper()
	inv, err := invoice.NewInvoice("acme.pdf", "application/pdf", "invoices/2024/01/x/acme.pdf")
	require.NoError(t, err)
	require.NoError(t, inv.StartProcessing())
	return inv
}

func newParsedInvoice(t *testing.T) *invoice.Invoice {
	t.Helper()
	inv := newProcessingInvoice(t)
	item := invoice.NewLineItemData()
	item.Description = "Consulting"
	item.UnitPrice = decimal.NewFromInt(50)
	item.Amount = decimal.NewFromInt(50)
	result := &invoice.NormalizedInvoice{
		VendorName:    "Acme",
		InvoiceNumber: "INV-1",
		InvoiceDate:   "2024-01-15",
		TotalAmount:   decimal.NewFromInt(50),
		LineItems:     []invoice.LineItemData{item},
	}
	raw := map[string]any{"vendor_name": "Acme", "invoice_number": "INV-1", "total": "50"}
	require.NoError(t, inv.MarkParsed(result, raw, "LlamaCloud"))
	inv.ClearDomainEvents()
	return inv
}

func pdfUpload() UploadInput {
	return UploadInput{FileName: "acme.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")}
}

func TestInvoiceService_Upload_Success(t *testing.T) {
	f := newServiceFixture()
	mapping, err := invoice.NewVendorMapping("Acme Corp", invoice.FieldMappings{}, nil)
	require.NoError(t, err)

	f.storage.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "invoices/") && strings.HasSuffix(key, "/acme.pdf")
	}), "application/pdf", []byte("%PDF-1.4")).Return(nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.primary.On("Parse", mock.Anything, mock.MatchedBy(func(doc Document) bool {
		return doc.FileName == "acme.pdf" && doc.ContentType == "application/pdf"
	})).Return(&Extraction{Raw: map[string]any{
		"data": map[string]any{
			"vendor":         map[string]any{"name": "Acme Corp"},
			"invoice_number": 1042,
			"invoice_date":   "2024-02-01",
			"total":          "$1,250.00",
			"line_items": []any{
				map[string]any{"description": "Design work PN: 5521", "amount": 1250},
			},
		},
	}}, nil)
	f.resolver.On("Resolve", mock.Anything, "Acme Corp").Return(mapping)

	resp, err := f.service.Upload(context.Background(), pdfUpload())

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "parsed", resp.Invoice.Status)
	assert.Equal(t, "Acme Corp", resp.Invoice.VendorName)
	assert.Equal(t, "1042", resp.Invoice.InvoiceNumber)
	require.NotNil(t, resp.Invoice.InvoiceDate)
	assert.Equal(t, "2024-02-01", *resp.Invoice.InvoiceDate)
	assert.True(t, decimal.NewFromInt(1250).Equal(resp.Invoice.TotalAmount))
	assert.Equal(t, "LlamaCloud", resp.ParserUsed)
	require.NotNil(t, resp.Invoice.VendorMappingID)
	assert.Equal(t, mapping.ID, *resp.Invoice.VendorMappingID)
	assert.True(t, resp.Invoice.HasDocument)
	require.Len(t, resp.LineItems, 1)
	assert.Equal(t, "5521", resp.LineItems[0].ProjectNumber)
	assert.NotNil(t, resp.ParsedData)
	assert.NotEmpty(t, resp.RawExtractionData)

	f.invoices.AssertNumberOfCalls(t, "Save", 3)
	assert.Equal(t, []string{invoice.EventTypeInvoiceParsed}, f.events.types())
}

func TestInvoiceService_Upload_DefaultMappingIsNotAssociated(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.primary.On("Parse", mock.Anything, mock.Anything).
		Return(&Extraction{Raw: map[string]any{"vendor_name": "Unknown Co"}}, nil)
	f.resolver.On("Resolve", mock.Anything, "Unknown Co").Return(invoice.DefaultVendorMapping())

	resp, err := f.service.Upload(context.Background(), pdfUpload())

	require.NoError(t, err)
	assert.Nil(t, resp.Invoice.VendorMappingID)
}

func TestInvoiceService_Upload_ParseFailure(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.primary.On("Parse", mock.Anything, mock.Anything).Return(nil, errors.New("Timeout waiting for LlamaCloud"))

	resp, err := f.service.Upload(context.Background(), pdfUpload())

	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "PARSE_FAILED", domainErr.Code)
	assert.Equal(t, "Timeout waiting for LlamaCloud", domainErr.Message)
	assert.ErrorIs(t, err, ErrAllParsersFailed)

	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Invoice.Status)
	assert.Equal(t, "Timeout waiting for LlamaCloud", resp.Invoice.ErrorMessage)
	assert.Equal(t, "LlamaCloud", resp.ParserUsed)
	assert.Equal(t, []string{invoice.EventTypeInvoiceFailed}, f.events.types())
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestInvoiceService_Upload_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		input UploadInput
		code  string
	}{
		{"unsupported type", UploadInput{FileName: "notes.txt", ContentType: "text/plain", Content: []byte("x")}, "UNSUPPORTED_FILE"},
		{"empty file", UploadInput{FileName: "acme.pdf", ContentType: "application/pdf"}, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()

			resp, err := f.service.Upload(context.Background(), tt.input)

			assert.Nil(t, resp)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
			f.storage.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.invoices.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestInvoiceService_Upload_StorageFailure(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unavailable"))

	_, err := f.service.Upload(context.Background(), pdfUpload())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	f.invoices.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestInvoiceService_Upload_WithoutStorage(t *testing.T) {
	invoices := new(MockInvoiceRepository)
	primary := newMockParser("LlamaCloud")
	svc := NewInvoiceService(invoices, new(MockVendorMappingRepository),
		NewParserChain([]DocumentParser{primary}, zap.NewNop()), new(MockMappingResolver),
		WithLogger(zap.NewNop()),
	)
	unarchived := mock.MatchedBy(func(inv *invoice.Invoice) bool { return inv.StorageKey == "" })
	invoices.On("Save", mock.Anything, unarchived).Return(nil)
	primary.On("Parse", mock.Anything, mock.Anything).Return(nil, errors.New("Timeout waiting for LlamaCloud"))

	resp, err := svc.Upload(context.Background(), pdfUpload())

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Invoice.Status)
	invoices.AssertNumberOfCalls(t, "Save", 3)

	stored := newParsedInvoice(t)
	stored.StorageKey = ""
	invoices.On("FindByID", mock.Anything, stored.ID).Return(stored, nil)
	_, err = svc.DocumentURL(context.Background(), stored.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceService_Upload_SaveFailureDiscardsDocument(t *testing.T) {
	f := newServiceFixture()
	var storedKey string
	f.storage.On("Put", mock.Anything, mock.Anything, "application/pdf", mock.Anything).
		Run(func(args mock.Arguments) { storedKey = args.String(1) }).
		Return(nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	f.storage.On("Delete", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.Upload(context.Background(), pdfUpload())

	require.Error(t, err)
	require.NotEmpty(t, storedKey)
	f.storage.AssertCalled(t, "Delete", mock.Anything, storedKey)
	f.primary.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything)
}

func TestInvoiceService_Upload_ParseEndsBeforeStuckTimeout(t *testing.T) {
	f := newServiceFixture()
	f.service.stuckTimeout = 200 * time.Millisecond
	f.storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)
	var deadline time.Time
	f.primary.On("Parse", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, _ = ctx.Deadline()
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)

	start := time.Now()
	resp, err := f.service.Upload(context.Background(), pdfUpload())

	require.False(t, deadline.IsZero())
	assert.True(t, deadline.Before(start.Add(200*time.Millisecond)))
	assert.Less(t, time.Since(start), time.Second)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "PARSE_FAILED", domainErr.Code)
	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Invoice.Status)
}

func TestInvoiceService_LogsCarryInvoiceID(t *testing.T) {
	t.Run("background sweep uses the service logger", func(t *testing.T) {
		f := newServiceFixture()
		core, recorded := observer.New(zapcore.InfoLevel)
		f.service.logger = zap.New(core)
		stuck := newProcessingInvoice(t)
		stuck.UpdatedAt = f.now.Add(-2 * time.Minute)
		f.invoices.On("FindStuck", mock.Anything, mock.Anything).Return([]invoice.Invoice{*stuck}, nil)
		f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)

		_, err := f.service.FailStuckInvoices(context.Background())

		require.NoError(t, err)
		entries := recorded.FilterMessage("invoice processing timed out").All()
		require.Len(t, entries, 1)
		assert.Equal(t, stuck.ID.String(), entries[0].ContextMap()["invoice_id"])
	})

	t.Run("request logger is preferred", func(t *testing.T) {
		f := newServiceFixture()
		serviceCore, serviceLogs := observer.New(zapcore.InfoLevel)
		f.service.logger = zap.New(serviceCore)
		requestCore, requestLogs := observer.New(zapcore.InfoLevel)
		ctx, _ := logger.WithRequestID(context.Background(), zap.New(requestCore), "req-42")

		inv := newParsedInvoice(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.accounting.On("CreateVendorBill", mock.Anything, mock.Anything).Return("", errors.New("vendor not found"))

		_, err := f.service.CreateVendorBill(ctx, inv.ID)

		require.Error(t, err)
		assert.Zero(t, serviceLogs.Len())
		entries := requestLogs.FilterMessage("failed to create vendor bill").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, inv.ID.String(), fields["invoice_id"])
		assert.Equal(t, "req-42", fields["request_id"])
	})
}

func TestInvoiceService_List_SweepsStuckInvoicesFirst(t *testing.T) {
	f := newServiceFixture()
	stuck := newProcessingInvoice(t)
	stuck.UpdatedAt = f.now.Add(-2 * time.Minute)
	parsed := newParsedInvoice(t)

	f.invoices.On("FindStuck", mock.Anything, f.now.Add(-DefaultStuckTimeout)).Return([]invoice.Invoice{*stuck}, nil)
	f.invoices.On("Save", mock.Anything, mock.MatchedBy(func(inv *invoice.Invoice) bool {
		return inv.ID == stuck.ID && inv.Status == invoice.StatusError
	})).Return(nil)
	f.invoices.On("FindAll", mock.Anything, mock.MatchedBy(func(filter invoice.InvoiceFilter) bool {
		return filter.WithLineItems && filter.Page == 1 && filter.PageSize == defaultPageSize && filter.Status == ""
	})).Return([]invoice.Invoice{*parsed}, int64(1), nil)

	resp, err := f.service.List(context.Background(), ListInvoicesFilter{IncludeDetails: true})

	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Invoices, 1)
	assert.Len(t, resp.Invoices[0].LineItems, 1)
	assert.NotNil(t, resp.Invoices[0].ParsedData)
	assert.Equal(t, []string{invoice.EventTypeInvoiceFailed}, f.events.types())
	f.invoices.AssertExpectations(t)
}

func TestInvoiceService_List_WithoutDetails(t *testing.T) {
	f := newServiceFixture()
	parsed := newParsedInvoice(t)
	f.invoices.On("FindStuck", mock.Anything, mock.Anything).Return([]invoice.Invoice{}, nil)
	f.invoices.On("FindAll", mock.Anything, mock.MatchedBy(func(filter invoice.InvoiceFilter) bool {
		return !filter.WithLineItems && filter.Status == invoice.StatusParsed && filter.Page == 2 && filter.PageSize == 10
	})).Return([]invoice.Invoice{*parsed}, int64(11), nil)

	resp, err := f.service.List(context.Background(), ListInvoicesFilter{Status: "parsed", Page: 2, PageSize: 10})

	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Empty(t, resp.Invoices[0].LineItems)
	assert.Nil(t, resp.Invoices[0].ParsedData)
	assert.Equal(t, 2, resp.Page)
}

func TestInvoiceService_List_InvalidStatus(t *testing.T) {
	f := newServiceFixture()
	f.invoices.On("FindStuck", mock.Anything, mock.Anything).Return([]invoice.Invoice{}, nil)

	_, err := f.service.List(context.Background(), ListInvoicesFilter{Status: "archived"})

	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestInvoiceService_FailStuckInvoices(t *testing.T) {
	f := newServiceFixture()
	stuck := newProcessingInvoice(t)
	stuck.UpdatedAt = f.now.Add(-61 * time.Second)
	fresh := newProcessingInvoice(t)
	fresh.UpdatedAt = f.now.Add(-10 * time.Second)

	f.invoices.On("FindStuck", mock.Anything, mock.Anything).Return([]invoice.Invoice{*stuck, *fresh}, nil)
	f.invoices.On("Save", mock.Anything, mock.Anything).Return(nil)

	count, err := f.service.FailStuckInvoices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	f.invoices.AssertNumberOfCalls(t, "Save", 1)
	saved := f.invoices.Calls[1].Arguments.Get(1).(*invoice.Invoice)
	assert.Equal(t, invoice.StatusError, saved.Status)
	assert.Equal(t, invoice.ProcessingTimeoutMessage, saved.ErrorMessage)
}

func TestInvoiceService_FailStuckInvoices_CustomTimeout(t *testing.T) {
	f := newServiceFixture()
	f.service = NewInvoiceService(f.invoices, f.mappings, f.service.parser, f.resolver,
		WithStuckTimeout(5*time.Minute),
		WithClock(func() time.Time { return f.now }),
	)
	f.invoices.On("FindStuck", mock.Anything, f.now.Add(-5*time.Minute)).Return([]invoice.Invoice{}, nil)

	count, err := f.service.FailStuckInvoices(context.Background())

	require.NoError(t, err)
	assert.Zero(t, count)
	f.invoices.AssertExpectations(t)
}

func TestInvoiceService_Get_NotFound(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()
	f.invoices.On("FindByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

	_, err := f.service.Get(context.Background(), id)

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceService_Delete_IgnoresStorageErrors(t *testing.T) {
	f := newServiceFixture()
	inv := newParsedInvoice(t)
	f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
	f.invoices.On("Delete", mock.Anything, inv.ID).Return(nil)
	f.storage.On("Delete", mock.Anything, inv.StorageKey).Return(errors.New("access denied"))

	err := f.service.Delete(context.Background(), inv.ID)

	require.NoError(t, err)
	f.storage.AssertExpectations(t)
}

func TestInvoiceService_DeleteMany(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.DeleteMany(context.Background(), nil)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
		assert.Equal(t, "No invoice IDs provided", domainErr.Message)
	})

	t.Run("removes invoices and documents", func(t *testing.T) {
		f := newServiceFixture()
		first := newParsedInvoice(t)
		second := newParsedInvoice(t)
		second.StorageKey = "invoices/2024/01/y/other.pdf"
		noDocument := newParsedInvoice(t)
		noDocument.StorageKey = ""
		ids := []uuid.UUID{first.ID, second.ID, noDocument.ID, uuid.New()}

		f.invoices.On("FindByIDs", mock.Anything, ids).Return([]invoice.Invoice{*first, *second, *noDocument}, nil)
		f.invoices.On("DeleteMany", mock.Anything, ids).Return(int64(3), nil)
		f.storage.On("Delete", mock.Anything, first.StorageKey).Return(nil)
		f.storage.On("Delete", mock.Anything, second.StorageKey).Return(errors.New("gone"))

		resp, err := f.service.DeleteMany(context.Background(), ids)

		require.NoError(t, err)
		assert.Equal(t, int64(3), resp.DeletedCount)
		f.storage.AssertNumberOfCalls(t, "Delete", 2)
	})
}

func TestInvoiceService_CreateVendorBill(t *testing.T) {
	t.Run("completes parsed invoice", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.accounting.On("CreateVendorBill", mock.Anything, mock.MatchedBy(func(req VendorBillRequest) bool {
			return req.InvoiceID == inv.ID && req.VendorName == "Acme" && len(req.Lines) == 1 &&
				req.Lines[0].Rate.Equal(decimal.NewFromInt(50))
		})).Return("BILL-77", nil)
		f.invoices.On("Save", mock.Anything, inv).Return(nil)

		resp, err := f.service.CreateVendorBill(context.Background(), inv.ID)

		require.NoError(t, err)
		assert.Equal(t, "BILL-77", resp.VendorBillID)
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, []string{invoice.EventTypeVendorBillCreated}, f.events.types())
	})

	t.Run("rejects invoice that is not parsed", func(t *testing.T) {
		f := newServiceFixture()
		inv := newProcessingInvoice(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)

		_, err := f.service.CreateVendorBill(context.Background(), inv.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
		assert.Equal(t, "Cannot create vendor bill. Invoice status is processing", domainErr.Message)
		f.accounting.AssertNotCalled(t, "CreateVendorBill", mock.Anything, mock.Anything)
	})

	t.Run("accounting failure leaves invoice parsed", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.accounting.On("CreateVendorBill", mock.Anything, mock.Anything).Return("", errors.New("vendor not found"))

		_, err := f.service.CreateVendorBill(context.Background(), inv.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ACCOUNTING_ERROR", domainErr.Code)
		assert.Equal(t, invoice.StatusParsed, inv.Status)
		f.invoices.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestInvoiceService_ApplyMapping(t *testing.T) {
	newMapping := func(t *testing.T) *invoice.VendorMapping {
		m, err := invoice.NewVendorMapping("Acme Holdings", invoice.FieldMappings{
			InvoiceNumber: []string{"ref"},
		}, nil)
		require.NoError(t, err)
		return m
	}

	t.Run("reprocesses parsed invoice", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		inv.ParsedData.RawExtraction["ref"] = "R-9"
		mapping := newMapping(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.mappings.On("FindByID", mock.Anything, mapping.ID).Return(mapping, nil)
		f.invoices.On("Save", mock.Anything, inv).Return(nil)

		resp, err := f.service.ApplyMapping(context.Background(), inv.ID, mapping.ID)

		require.NoError(t, err)
		assert.True(t, resp.Reprocessed)
		assert.Equal(t, "Vendor mapping applied and invoice reprocessed", resp.Message)
		assert.Equal(t, "Acme Holdings", resp.Invoice.Invoice.VendorName)
		assert.Equal(t, "R-9", resp.Invoice.Invoice.InvoiceNumber)
		assert.Equal(t, "parsed", resp.Invoice.Invoice.Status)
		require.NotNil(t, resp.Invoice.Invoice.VendorMappingID)
		assert.Equal(t, mapping.ID, *resp.Invoice.Invoice.VendorMappingID)
	})

	t.Run("chosen vendor wins over mapped vendor sources", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		inv.ParsedData.RawExtraction["supplier"] = "Acme Subcontracting LLC"
		mapping, err := invoice.NewVendorMapping("Acme Holdings", invoice.FieldMappings{
			VendorName: []string{"supplier"},
		}, nil)
		require.NoError(t, err)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.mappings.On("FindByID", mock.Anything, mapping.ID).Return(mapping, nil)
		f.invoices.On("Save", mock.Anything, inv).Return(nil)

		resp, err := f.service.ApplyMapping(context.Background(), inv.ID, mapping.ID)

		require.NoError(t, err)
		assert.Equal(t, "Acme Holdings", resp.Invoice.Invoice.VendorName)
		assert.Equal(t, "Acme Holdings", inv.VendorName)
	})

	t.Run("associates only when not parsed", func(t *testing.T) {
		f := newServiceFixture()
		inv := newProcessingInvoice(t)
		mapping := newMapping(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.mappings.On("FindByID", mock.Anything, mapping.ID).Return(mapping, nil)
		f.invoices.On("Save", mock.Anything, inv).Return(nil)

		resp, err := f.service.ApplyMapping(context.Background(), inv.ID, mapping.ID)

		require.NoError(t, err)
		assert.False(t, resp.Reprocessed)
		assert.Equal(t, "Vendor mapping applied (no reparse)", resp.Message)
	})

	t.Run("parsed invoice without raw extraction", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		inv.ParsedData.RawExtraction = nil
		mapping := newMapping(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.mappings.On("FindByID", mock.Anything, mapping.ID).Return(mapping, nil)
		f.invoices.On("Save", mock.Anything, inv).Return(nil)

		_, err := f.service.ApplyMapping(context.Background(), inv.ID, mapping.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "Unsupported data format cannot be reprocessed", domainErr.Message)
		require.NotNil(t, inv.VendorMappingID)
		f.invoices.AssertCalled(t, "Save", mock.Anything, inv)
	})

	t.Run("unknown mapping", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		mappingID := uuid.New()
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.mappings.On("FindByID", mock.Anything, mappingID).Return(nil, shared.ErrNotFound)

		_, err := f.service.ApplyMapping(context.Background(), inv.ID, mappingID)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestInvoiceService_Export(t *testing.T) {
	f := newServiceFixture()
	parsed := newParsedInvoice(t)
	f.invoices.On("FindAll", mock.Anything, mock.MatchedBy(func(filter invoice.InvoiceFilter) bool {
		return filter.WithLineItems && filter.PageSize == 0
	})).Return([]invoice.Invoice{*parsed}, int64(1), nil)
	f.exporter.On("Export", []invoice.Invoice{*parsed}).Return([]byte("xlsx"), nil)

	data, err := f.service.Export(context.Background(), ListInvoicesFilter{})

	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), data)
}

func TestInvoiceService_DocumentURL(t *testing.T) {
	t.Run("presigns archived document", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		f.storage.On("PresignGet", mock.Anything, inv.StorageKey, DefaultDocumentURLTTL).
			Return("https://s3.local/doc?sig=1", nil)

		resp, err := f.service.DocumentURL(context.Background(), inv.ID)

		require.NoError(t, err)
		assert.Equal(t, "https://s3.local/doc?sig=1", resp.URL)
		assert.Equal(t, f.now.Add(DefaultDocumentURLTTL), resp.ExpiresAt)
	})

	t.Run("no archived document", func(t *testing.T) {
		f := newServiceFixture()
		inv := newParsedInvoice(t)
		inv.StorageKey = ""
		f.invoices.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)

		_, err := f.service.DocumentURL(context.Background(), inv.ID)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
