// Package accounting pushes parsed invoices to the accounting system as vendor bills.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

const (
	zohoDateLayout = "2006-01-02"
	// tokenRefreshMargin refreshes the access token slightly before Zoho expires it
	tokenRefreshMargin = time.Minute
	defaultTimeout     = 30 * time.Second
)

// Ensure ZohoClient implements AccountingClient
var _ invoiceapp.AccountingClient = (*ZohoClient)(nil)

// ZohoClient creates vendor bills in Zoho Books
type ZohoClient struct {
	accounts *resty.Client
	api      *resty.Client
	cfg      config.ZohoConfig
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// ZohoOption configures a ZohoClient
type ZohoOption func(*ZohoClient)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ZohoOption {
	return func(c *ZohoClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each Zoho request
func WithTimeout(d time.Duration) ZohoOption {
	return func(c *ZohoClient) {
		if d > 0 {
			c.accounts.SetTimeout(d)
			c.api.SetTimeout(d)
		}
	}
}

// WithTracing enables client spans for Zoho requests
func WithTracing(enabled bool) ZohoOption {
	return func(c *ZohoClient) {
		if enabled {
			telemetry.InstrumentResty(c.accounts, "accounting/zoho/oauth")
			telemetry.InstrumentResty(c.api, "accounting/zoho/books")
		}
	}
}

// WithClock overrides the time source used for token expiry and bill dates
func WithClock(now func() time.Time) ZohoOption {
	return func(c *ZohoClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewZohoClient creates a Zoho Books client
func NewZohoClient(cfg config.ZohoConfig, opts ...ZohoOption) (*ZohoClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("zoho client id, client secret and refresh token are required")
	}
	if cfg.OrganizationID == "" {
		return nil, errors.New("zoho organization id is required")
	}

	c := &ZohoClient{
		accounts: resty.New().
			SetBaseURL(strings.TrimRight(cfg.AccountsURL, "/")).
			SetTimeout(defaultTimeout),
		api: resty.New().
			SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type zohoTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// zohoEnvelope carries the status fields present on every Books response
type zohoEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e zohoEnvelope) err(step string) error {
	if e.Code != 0 {
		return fmt.Errorf("zoho %s failed: code %d: %s", step, e.Code, e.Message)
	}
	return nil
}

type zohoContactsResponse struct {
	zohoEnvelope
	Contacts []struct {
		ContactID   string `json:"contact_id"`
		ContactName string `json:"contact_name"`
	} `json:"contacts"`
}

type zohoBillLine struct {
	Description string  `json:"description"`
	Rate        float64 `json:"rate"`
	Quantity    float64 `json:"quantity"`
	AccountID   string  `json:"account_id,omitempty"`
}

type zohoBill struct {
	VendorID   string         `json:"vendor_id"`
	BillNumber string         `json:"bill_number"`
	Date       string         `json:"date"`
	DueDate    string         `json:"due_date,omitempty"`
	LineItems  []zohoBillLine `json:"line_items"`
}

type zohoBillResponse struct {
	zohoEnvelope
	Bill struct {
		BillID string `json:"bill_id"`
	} `json:"bill"`
}

// CreateVendorBill finds the vendor contact and creates a bill for the invoice
func (c *ZohoClient) CreateVendorBill(ctx context.Context, req invoiceapp.VendorBillRequest) (string, error) {
	if strings.TrimSpace(req.VendorName) == "" {
		return "", errors.New("invoice has no vendor name")
	}

	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	vendorID, err := c.findVendor(ctx, token, req.VendorName)
	if err != nil {
		return "", err
	}

	bill := c.buildBill(vendorID, req)
	var out zohoBillResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Authorization", "Zoho-oauthtoken "+token).
		SetQueryParam("organization_id", c.cfg.OrganizationID).
		SetBody(bill).
		SetResult(&out).
		SetError(&out).
		Post("/bills")
	if err != nil {
		return "", fmt.Errorf("zoho bill request failed: %w", err)
	}
	if err := out.err("bill creation"); err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("zoho bill creation failed: %s", resp.Status())
	}
	if out.Bill.BillID == "" {
		return "", errors.New("zoho returned no bill id")
	}

	c.logger.Info("zoho vendor bill created",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("vendor_id", vendorID),
		zap.String("bill_id", out.Bill.BillID),
	)
	return out.Bill.BillID, nil
}

func (c *ZohoClient) buildBill(vendorID string, req invoiceapp.VendorBillRequest) zohoBill {
	bill := zohoBill{
		VendorID:   vendorID,
		BillNumber: req.InvoiceNumber,
		Date:       c.now().UTC().Format(zohoDateLayout),
		LineItems:  make([]zohoBillLine, 0, len(req.Lines)),
	}
	if bill.BillNumber == "" {
		bill.BillNumber = req.InvoiceID.String()
	}
	if req.InvoiceDate != nil {
		bill.Date = req.InvoiceDate.Format(zohoDateLayout)
	}
	if req.DueDate != nil {
		bill.DueDate = req.DueDate.Format(zohoDateLayout)
	}

	for _, line := range req.Lines {
		bill.LineItems = append(bill.LineItems, zohoBillLine{
			Description: line.Description,
			Rate:        line.Rate.InexactFloat64(),
			Quantity:    line.Quantity.InexactFloat64(),
			AccountID:   c.cfg.ExpenseAccount,
		})
	}
	if len(bill.LineItems) == 0 {
		bill.LineItems = append(bill.LineItems, zohoBillLine{
			Description: "Invoice " + bill.BillNumber,
			Rate:        req.Total.InexactFloat64(),
			Quantity:    1,
			AccountID:   c.cfg.ExpenseAccount,
		})
	}
	return bill
}

func (c *ZohoClient) findVendor(ctx context.Context, token, name string) (string, error) {
	var out zohoContactsResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Authorization", "Zoho-oauthtoken "+token).
		SetQueryParams(map[string]string{
			"organization_id": c.cfg.OrganizationID,
			"contact_name":    name,
			"contact_type":    "vendor",
		}).
		SetResult(&out).
		SetError(&out).
		Get("/contacts")
	if err != nil {
		return "", fmt.Errorf("zoho vendor lookup failed: %w", err)
	}
	if err := out.err("vendor lookup"); err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("zoho vendor lookup failed: %s", resp.Status())
	}
	if len(out.Contacts) == 0 {
		return "", fmt.Errorf("vendor %q not found in Zoho Books", name)
	}
	return out.Contacts[0].ContactID, nil
}

// token returns a cached access token, refreshing it when close to expiry
func (c *ZohoClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.accessToken, nil
	}

	var out zohoTokenResponse
	resp, err := c.accounts.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": c.cfg.RefreshToken,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/oauth/v2/token")
	if err != nil {
		return "", fmt.Errorf("zoho token refresh failed: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("zoho token refresh failed: %s", out.Error)
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", fmt.Errorf("zoho token refresh failed: %s", resp.Status())
	}

	c.accessToken = out.AccessToken
	c.expiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	c.logger.Debug("zoho access token refreshed", zap.Time("expires_at", c.expiresAt))
	return c.accessToken, nil
}
