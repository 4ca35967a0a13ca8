package accounting

import (
	"context"

	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

// StubBillPrefix prefixes the vendor bill ids issued by StubClient
const StubBillPrefix = "TEST-VENDOR-BILL-ID-"

// Ensure StubClient implements AccountingClient
var _ invoiceapp.AccountingClient = (*StubClient)(nil)

// StubClient completes invoices without calling an accounting system
type StubClient struct {
	logger *zap.Logger
}

// NewStubClient creates a stub accounting client
func NewStubClient(logger *zap.Logger) *StubClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubClient{logger: logger}
}

// CreateVendorBill returns a placeholder bill id derived from the invoice id
func (c *StubClient) CreateVendorBill(ctx context.Context, req invoiceapp.VendorBillRequest) (string, error) {
	billID := StubBillPrefix + req.InvoiceID.String()
	c.logger.Info("accounting integration skipped, issued test vendor bill",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("vendor_bill_id", billID),
	)
	return billID, nil
}

// NewClient returns a Zoho client when Zoho is enabled and the stub otherwise
func NewClient(cfg config.ZohoConfig, logger *zap.Logger, opts ...ZohoOption) (invoiceapp.AccountingClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("Zoho Books disabled, using stub accounting client")
		return NewStubClient(logger), nil
	}
	return NewZohoClient(cfg, append([]ZohoOption{WithLogger(logger)}, opts...)...)
}
