package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/interfaces/http/dto"
	"github.com/invoiceflow/backend/internal/interfaces/http/middleware"
)

const (
	// UploadFormField is the multipart field carrying the invoice document
	UploadFormField = "invoice"
	// DefaultMaxUploadSize caps uploaded documents when no limit is configured
	DefaultMaxUploadSize int64 = 16 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// InvoiceUseCases is the invoice application surface used by the handler
type InvoiceUseCases interface {
	Upload(ctx context.Context, in invoiceapp.UploadInput) (*invoiceapp.InvoiceDetailResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*invoiceapp.InvoiceDetailResponse, error)
	List(ctx context.Context, filter invoiceapp.ListInvoicesFilter) (*invoiceapp.InvoiceListResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) (*invoiceapp.DeleteInvoicesResponse, error)
	CreateVendorBill(ctx context.Context, id uuid.UUID) (*invoiceapp.VendorBillResponse, error)
	ApplyMapping(ctx context.Context, invoiceID, mappingID uuid.UUID) (*invoiceapp.ApplyMappingResponse, error)
	Export(ctx context.Context, filter invoiceapp.ListInvoicesFilter) ([]byte, error)
	DocumentURL(ctx context.Context, id uuid.UUID) (*invoiceapp.DocumentURLResponse, error)
}

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoices      InvoiceUseCases
	maxUploadSize int64
	now           func() time.Time
}

// InvoiceHandlerOption configures an InvoiceHandler
type InvoiceHandlerOption func(*InvoiceHandler)

// WithMaxUploadSize sets the largest accepted document in bytes
func WithMaxUploadSize(n int64) InvoiceHandlerOption {
	return func(h *InvoiceHandler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices InvoiceUseCases, opts ...InvoiceHandlerOption) *InvoiceHandler {
	h := &InvoiceHandler{
		invoices:      invoices,
		maxUploadSize: DefaultMaxUploadSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upload accepts a multipart invoice document and parses it synchronously.
// A parse failure answers 400 with the failed invoice as data.
func (h *InvoiceHandler) Upload(c *gin.Context) {
	header, err := c.FormFile(UploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Uploaded file is too large")
			return
		}
		h.BadRequest(c, "No file part")
		return
	}
	fileName := filepath.Base(filepath.Clean("/" + header.Filename))
	if header.Filename == "" || fileName == "/" {
		h.BadRequest(c, "No selected file")
		return
	}
	if header.Size > h.maxUploadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("Uploaded file exceeds %d bytes", h.maxUploadSize))
		return
	}

	f, err := header.Open()
	if err != nil {
		h.HandleError(c, fmt.Errorf("open uploaded file: %w", err))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		h.HandleError(c, fmt.Errorf("read uploaded file: %w", err))
		return
	}

	detail, err := h.invoices.Upload(c.Request.Context(), invoiceapp.UploadInput{
		FileName:    fileName,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if detail != nil {
		c.Set(middleware.InvoiceIDKey, detail.Invoice.ID.String())
	}
	if err != nil {
		var domainErr *shared.DomainError
		if detail != nil && errors.As(err, &domainErr) {
			resp := dto.NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, getRequestID(c))
			resp.Data = detail
			c.JSON(dto.GetHTTPStatus(domainErr.Code), resp)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, detail)
}

// List returns a page of invoices, newest first
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter invoiceapp.ListInvoicesFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	resp, err := h.invoices.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, resp, resp.Total, resp.Page, resp.PageSize)
}

// Export streams the matching invoices as an XLSX attachment
func (h *InvoiceHandler) Export(c *gin.Context) {
	var filter invoiceapp.ListInvoicesFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	data, err := h.invoices.Export(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	name := fmt.Sprintf("invoices_%s.xlsx", h.now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Get returns one invoice with line items and extraction results
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	resp, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Document returns a presigned download URL for the archived document
func (h *InvoiceHandler) Document(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	resp, err := h.invoices.DocumentURL(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete removes one invoice
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	if err := h.invoices.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Invoice deleted successfully"})
}

// DeleteMany removes the invoices listed in the body
func (h *InvoiceHandler) DeleteMany(c *gin.Context) {
	var req invoiceapp.DeleteInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	if len(req.InvoiceIDs) == 0 {
		h.BadRequest(c, "No invoice IDs provided")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.InvoiceIDs))
	for _, raw := range req.InvoiceIDs {
		id, err := ParseID(raw, "invoice ID")
		if err != nil {
			h.HandleError(c, err)
			return
		}
		ids = append(ids, id)
	}

	resp, err := h.invoices.DeleteMany(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// CreateVendorBill pushes a parsed invoice to the accounting system
func (h *InvoiceHandler) CreateVendorBill(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	resp, err := h.invoices.CreateVendorBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ApplyMapping links a vendor mapping to an invoice and reprocesses it
func (h *InvoiceHandler) ApplyMapping(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	mappingID, ok := h.pathID(c, "mapping_id", "mapping ID")
	if !ok {
		return
	}
	resp, err := h.invoices.ApplyMapping(c.Request.Context(), id, mappingID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *InvoiceHandler) invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := h.pathID(c, "id", "invoice ID")
	if ok {
		c.Set(middleware.InvoiceIDKey, id.String())
	}
	return id, ok
}
