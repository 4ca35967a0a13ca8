package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultStuckTimeout is how long an invoice may stay in processing
	DefaultStuckTimeout = 60 * time.Second
	// DefaultDocumentURLTTL is the lifetime of presigned document links
	DefaultDocumentURLTTL = 15 * time.Minute

	defaultPageSize       = 100
	documentCleanupLimit  = 4
	messageMappingApplied = "Vendor mapping applied and invoice reprocessed"
	messageMappingLinked  = "Vendor mapping applied (no reparse)"
)

// UploadRecorder is notified of every accepted upload
type UploadRecorder interface {
	RecordUpload(ctx context.Context, contentType string, size int)
}

// InvoiceService runs the invoice intake workflow
type InvoiceService struct {
	invoiceRepo invoice.InvoiceRepository
	mappingRepo invoice.VendorMappingRepository
	parser      DocumentParser
	resolver    MappingResolver
	storage     DocumentStorage
	accounting  AccountingClient
	exporter    InvoiceExporter
	events      shared.EventPublisher
	uploads     UploadRecorder
	logger      *zap.Logger

	stuckTimeout time.Duration
	documentTTL  time.Duration
	now          func() time.Time
}

// InvoiceServiceOption is a functional option for configuring InvoiceService
type InvoiceServiceOption func(*InvoiceService)

// WithDocumentStorage archives uploaded documents in the given storage
func WithDocumentStorage(storage DocumentStorage) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.storage = storage
	}
}

// WithAccountingClient sets the client used to create vendor bills
func WithAccountingClient(client AccountingClient) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.accounting = client
	}
}

// WithExporter sets the workbook exporter
func WithExporter(exporter InvoiceExporter) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.exporter = exporter
	}
}

// WithEventPublisher publishes invoice domain events after each save
func WithEventPublisher(publisher shared.EventPublisher) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.events = publisher
	}
}

// WithUploadRecorder reports accepted uploads
func WithUploadRecorder(recorder UploadRecorder) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.uploads = recorder
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.logger = logger
	}
}

// WithStuckTimeout overrides how long an invoice may remain in processing
func WithStuckTimeout(timeout time.Duration) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if timeout > 0 {
			s.stuckTimeout = timeout
		}
	}
}

// WithDocumentURLTTL overrides the lifetime of presigned document links
func WithDocumentURLTTL(ttl time.Duration) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if ttl > 0 {
			s.documentTTL = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.now = now
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo invoice.InvoiceRepository,
	mappingRepo invoice.VendorMappingRepository,
	parser DocumentParser,
	resolver MappingResolver,
	opts ...InvoiceServiceOption,
) *InvoiceService {
	s := &InvoiceService{
		invoiceRepo:  invoiceRepo,
		mappingRepo:  mappingRepo,
		parser:       parser,
		resolver:     resolver,
		logger:       zap.NewNop(),
		stuckTimeout: DefaultStuckTimeout,
		documentTTL:  DefaultDocumentURLTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload archives, records and parses an uploaded invoice document.
// When parsing fails the failed invoice is returned together with a PARSE_FAILED error.
func (s *InvoiceService) Upload(ctx context.Context, in UploadInput) (resp *InvoiceDetailResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "upload",
		telemetry.WithAttribute(telemetry.SpanAttrFileName, in.FileName),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	contentType, err := ResolveContentType(in.FileName, in.ContentType)
	if err != nil {
		return nil, err
	}
	if len(in.Content) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Empty file")
	}

	inv, err := invoice.NewInvoice(in.FileName, contentType, "")
	if err != nil {
		return nil, err
	}
	ctx, log := s.invoiceContext(ctx, inv.ID)
	log = log.With(zap.String("file_name", inv.FileName))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, inv.ID.String(),
		telemetry.SpanAttrContentType, contentType,
	)

	if s.storage != nil {
		key := StorageKey(inv.ID, inv.FileName, s.now())
		if err := s.storage.Put(ctx, key, contentType, in.Content); err != nil {
			return nil, fmt.Errorf("archive invoice document: %w", err)
		}
		inv.StorageKey = key
	}
	if s.uploads != nil {
		s.uploads.RecordUpload(ctx, contentType, len(in.Content))
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		s.discardDocument(ctx, inv.StorageKey, log)
		return nil, err
	}
	if err := inv.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}
	log.Info("invoice uploaded, parsing started", zap.String("content_type", contentType))

	// parsing must end before the sweeper would time the invoice out
	parseCtx, cancelParse := context.WithTimeout(ctx, s.stuckTimeout-s.stuckTimeout/10)
	extraction, parseErr := s.parser.Parse(parseCtx, Document{
		FileName:    inv.FileName,
		ContentType: contentType,
		Content:     in.Content,
	})
	cancelParse()
	if parseErr != nil {
		return s.failUpload(ctx, inv, parseErr, log)
	}

	transformed := invoice.TransformExtraction(extraction.Raw, inv.FileName)
	mapping := s.resolver.Resolve(ctx, invoice.VendorNameOf(transformed))
	normalized := invoice.Normalize(transformed, mapping)
	logInvalidDates(log, normalized)

	if err := inv.MarkParsed(normalized, extraction.Raw, extraction.Parser); err != nil {
		return nil, err
	}
	if !mapping.IsDefault() {
		inv.AssignVendorMapping(mapping.ID)
	}
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	log.Info("invoice parsed",
		zap.String("parser", extraction.Parser),
		zap.String("vendor_name", inv.VendorName),
		zap.Int("line_items", len(inv.LineItems)),
	)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrParser, extraction.Parser,
		telemetry.SpanAttrVendorName, inv.VendorName,
		telemetry.SpanAttrInvoiceStatus, inv.Status.String(),
		telemetry.SpanAttrLineItems, len(inv.LineItems),
	)
	detail := ToInvoiceDetailResponse(inv)
	return &detail, nil
}

func (s *InvoiceService) failUpload(ctx context.Context, inv *invoice.Invoice, parseErr error, log *zap.Logger) (*InvoiceDetailResponse, error) {
	var failure *ParseFailure
	if errors.As(parseErr, &failure) {
		inv.ParserUsed = failure.LastParser()
	} else {
		inv.ParserUsed = s.parser.Name()
	}

	message := parseErr.Error()
	if err := inv.MarkFailed(message); err != nil {
		return nil, err
	}
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	log.Warn("invoice parsing failed", zap.String("parser", inv.ParserUsed), zap.Error(parseErr))
	resp := ToInvoiceDetailResponse(inv)
	return &resp, shared.WrapDomainError("PARSE_FAILED", message, parseErr)
}

// Get returns an invoice with its line items and extraction results
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*InvoiceDetailResponse, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceDetailResponse(inv)
	return &resp, nil
}

// List returns invoices newest first after failing any stuck ones
func (s *InvoiceService) List(ctx context.Context, filter ListInvoicesFilter) (*InvoiceListResponse, error) {
	if _, err := s.FailStuckInvoices(ctx); err != nil {
		s.logger.Warn("failed to sweep stuck invoices before listing", zap.Error(err))
	}

	query, err := toInvoiceFilter(filter)
	if err != nil {
		return nil, err
	}
	invoices, total, err := s.invoiceRepo.FindAll(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		if filter.IncludeDetails {
			items = append(items, ToInvoiceDetailsResponse(&invoices[i]))
		} else {
			items = append(items, ToInvoiceResponse(&invoices[i]))
		}
	}
	return &InvoiceListResponse{
		Invoices: items,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func toInvoiceFilter(filter ListInvoicesFilter) (invoice.InvoiceFilter, error) {
	query := invoice.InvoiceFilter{
		Filter:        shared.DefaultFilter(),
		WithLineItems: filter.IncludeDetails,
	}
	query.PageSize = defaultPageSize
	if filter.Page > 0 {
		query.Page = filter.Page
	}
	if filter.PageSize > 0 {
		query.PageSize = filter.PageSize
	}
	if filter.Status != "" {
		status := invoice.Status(filter.Status)
		if !status.IsValid() {
			return query, shared.NewDomainError("VALIDATION_ERROR",
				fmt.Sprintf("Invalid invoice status: %s", filter.Status))
		}
		query.Status = status
	}
	return query, nil
}

// Delete removes an invoice and its archived document
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.invoiceRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeDocuments(ctx, []invoice.Invoice{*inv})
	s.logger.Info("invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

// DeleteMany removes several invoices and returns how many were deleted
func (s *InvoiceService) DeleteMany(ctx context.Context, ids []uuid.UUID) (*DeleteInvoicesResponse, error) {
	if len(ids) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "No invoice IDs provided")
	}

	invoices, err := s.invoiceRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	deleted, err := s.invoiceRepo.DeleteMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.removeDocuments(ctx, invoices)

	s.logger.Info("invoices deleted", zap.Int("requested", len(ids)), zap.Int64("deleted", deleted))
	return &DeleteInvoicesResponse{DeletedCount: deleted}, nil
}

// removeDocuments deletes archived documents concurrently. Failures are logged only.
func (s *InvoiceService) removeDocuments(ctx context.Context, invoices []invoice.Invoice) {
	if s.storage == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(documentCleanupLimit)
	for i := range invoices {
		inv := invoices[i]
		if inv.StorageKey == "" {
			continue
		}
		g.Go(func() error {
			if err := s.storage.Delete(gctx, inv.StorageKey); err != nil {
				s.logger.Warn("failed to delete archived document",
					zap.String("invoice_id", inv.ID.String()),
					zap.String("storage_key", inv.StorageKey),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// CreateVendorBill pushes a parsed invoice to the accounting system and completes it
func (s *InvoiceService) CreateVendorBill(ctx context.Context, id uuid.UUID) (*VendorBillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create_vendor_bill",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id.String()),
	)
	defer span.End()
	ctx, log := s.invoiceContext(ctx, id)

	if s.accounting == nil {
		return nil, shared.NewDomainError("ACCOUNTING_ERROR", "Accounting integration is not configured")
	}
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusParsed {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot create vendor bill. Invoice status is %s", inv.Status))
	}

	billID, err := s.accounting.CreateVendorBill(ctx, NewVendorBillRequest(inv))
	if err != nil {
		log.Error("failed to create vendor bill", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.WrapDomainError("ACCOUNTING_ERROR",
			fmt.Sprintf("Failed to create vendor bill: %v", err), err)
	}

	if err := inv.CompleteWithVendorBill(billID); err != nil {
		return nil, err
	}
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	log.Info("vendor bill created", zap.String("vendor_bill_id", billID))
	telemetry.SetAttribute(span, telemetry.SpanAttrVendorBillID, billID)
	return &VendorBillResponse{
		InvoiceID:    inv.ID,
		VendorBillID: billID,
		Status:       inv.Status.String(),
	}, nil
}

// ApplyMapping associates a vendor mapping with an invoice and reprocesses
// the stored extraction when the invoice has already been parsed
func (s *InvoiceService) ApplyMapping(ctx context.Context, invoiceID, mappingID uuid.UUID) (*ApplyMappingResponse, error) {
	ctx, log := s.invoiceContext(ctx, invoiceID)
	inv, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	mapping, err := s.mappingRepo.FindByID(ctx, mappingID)
	if err != nil {
		return nil, err
	}

	inv.AssignVendorMapping(mapping.ID)

	if !inv.Status.HasParsedData() {
		if err := s.save(ctx, inv); err != nil {
			return nil, err
		}
		return &ApplyMappingResponse{
			Message: messageMappingLinked,
			Invoice: ToInvoiceDetailResponse(inv),
		}, nil
	}

	raw := inv.RawExtraction()
	if len(raw) == 0 {
		if err := s.save(ctx, inv); err != nil {
			return nil, err
		}
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Unsupported data format cannot be reprocessed")
	}

	transformed := invoice.TransformExtraction(raw, inv.FileName)
	transformed["vendor_name"] = mapping.VendorName
	transformed["vendor"] = map[string]any{"name": mapping.VendorName}
	normalized := invoice.Normalize(transformed, mapping)
	// the mapping's own vendor_name sources must not override the chosen vendor
	normalized.VendorName = mapping.VendorName

	if err := inv.Reparse(normalized, raw); err != nil {
		return nil, err
	}
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	log.Info("vendor mapping applied",
		zap.String("mapping_id", mapping.ID.String()),
		zap.String("vendor_name", mapping.VendorName),
	)
	return &ApplyMappingResponse{
		Message:     messageMappingApplied,
		Reprocessed: true,
		Invoice:     ToInvoiceDetailResponse(inv),
	}, nil
}

// FailStuckInvoices times out invoices left in processing and returns how many were failed
func (s *InvoiceService) FailStuckInvoices(ctx context.Context) (int, error) {
	now := s.now()
	stuck, err := s.invoiceRepo.FindStuck(ctx, now.Add(-s.stuckTimeout))
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range stuck {
		inv := &stuck[i]
		if !inv.IsStuck(now, s.stuckTimeout) {
			continue
		}
		if err := inv.TimeOut(); err != nil {
			continue
		}
		invCtx, log := s.invoiceContext(ctx, inv.ID)
		if err := s.save(invCtx, inv); err != nil {
			return count, err
		}
		log.Warn("invoice processing timed out", zap.Duration("stuck_timeout", s.stuckTimeout))
		count++
	}
	return count, nil
}

// Export renders the matching invoices as an XLSX workbook
func (s *InvoiceService) Export(ctx context.Context, filter ListInvoicesFilter) ([]byte, error) {
	if s.exporter == nil {
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Export is not available")
	}
	query, err := toInvoiceFilter(filter)
	if err != nil {
		return nil, err
	}
	query.WithLineItems = true
	query.Page = 1
	query.PageSize = 0

	invoices, _, err := s.invoiceRepo.FindAll(ctx, query)
	if err != nil {
		return nil, err
	}
	data, err := s.exporter.Export(invoices)
	if err != nil {
		return nil, fmt.Errorf("export invoices: %w", err)
	}
	return data, nil
}

// DocumentURL returns a temporary download link for the archived original document
func (s *InvoiceService) DocumentURL(ctx context.Context, id uuid.UUID) (*DocumentURLResponse, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.storage == nil || inv.StorageKey == "" {
		return nil, shared.NewDomainError("NOT_FOUND", "No archived document for this invoice")
	}

	url, err := s.storage.PresignGet(ctx, inv.StorageKey, s.documentTTL)
	if err != nil {
		return nil, fmt.Errorf("presign invoice document: %w", err)
	}
	return &DocumentURLResponse{
		URL:       url,
		ExpiresAt: s.now().Add(s.documentTTL),
	}, nil
}

// invoiceContext tags ctx and its logger with the invoice ID. Requests keep
// their request logger; background callers fall back to the service logger.
func (s *InvoiceService) invoiceContext(ctx context.Context, id uuid.UUID) (context.Context, *zap.Logger) {
	ctx = logger.WithContext(ctx, logger.FromContextOr(ctx, s.logger))
	ctx = logger.WithInvoiceID(ctx, id.String())
	return ctx, logger.L(ctx)
}

// discardDocument removes an archived document whose invoice was never recorded
func (s *InvoiceService) discardDocument(ctx context.Context, key string, log *zap.Logger) {
	if s.storage == nil || key == "" {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("failed to discard archived document", zap.String("storage_key", key), zap.Error(err))
	}
}

// save persists the invoice and then publishes its pending domain events
func (s *InvoiceService) save(ctx context.Context, inv *invoice.Invoice) error {
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return err
	}
	s.publishEvents(ctx, inv)
	return nil
}

// publishEvents drains the aggregate's pending events. Publish failures are logged, not returned.
func (s *InvoiceService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logger.LOr(ctx, s.logger).Warn("failed to publish invoice events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err),
		)
	}
}

func logInvalidDates(log *zap.Logger, normalized *invoice.NormalizedInvoice) {
	if normalized.InvoiceDate != "" {
		if _, ok := invoice.ParseDate(normalized.InvoiceDate); !ok {
			log.Warn("could not parse invoice date", zap.String("invoice_date", normalized.InvoiceDate))
		}
	}
	if normalized.DueDate != "" {
		if _, ok := invoice.ParseDate(normalized.DueDate); !ok {
			log.Warn("could not parse due date", zap.String("due_date", normalized.DueDate))
		}
	}
}
