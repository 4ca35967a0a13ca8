package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

type fakeZoho struct {
	tokenCalls atomic.Int32
	lastBill   atomic.Value // map[string]any
	contacts   []map[string]any
	billCode   int
}

func newFakeZoho(t *testing.T, f *fakeZoho) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/oauth/v2/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
			assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
			f.tokenCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "token-1", "expires_in": 3600})
		case r.Method == http.MethodGet && r.URL.Path == "/books/v3/contacts":
			assert.Equal(t, "Zoho-oauthtoken token-1", r.Header.Get("Authorization"))
			assert.Equal(t, "org-1", r.URL.Query().Get("organization_id"))
			assert.Equal(t, "vendor", r.URL.Query().Get("contact_type"))
			assert.Equal(t, "Acme Corp", r.URL.Query().Get("contact_name"))
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "success", "contacts": f.contacts})
		case r.Method == http.MethodPost && r.URL.Path == "/books/v3/bills":
			assert.Equal(t, "org-1", r.URL.Query().Get("organization_id"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.lastBill.Store(body)
			if f.billCode != 0 {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"code": f.billCode, "message": "Bill number already exists"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "bill": map[string]any{"bill_id": "bill-9"}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func zohoConfig(baseURL string) config.ZohoConfig {
	return config.ZohoConfig{
		Enabled:        true,
		ClientID:       "client-1",
		ClientSecret:   "secret-1",
		RefreshToken:   "refresh-1",
		OrganizationID: "org-1",
		AccountsURL:    baseURL,
		APIURL:         baseURL + "/books/v3",
		ExpenseAccount: "acct-7",
	}
}

func billRequest() invoiceapp.VendorBillRequest {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	return invoiceapp.VendorBillRequest{
		InvoiceID:     uuid.MustParse("6f1c2a55-7c1e-4f0e-9a3b-2d9a1f3e8b10"),
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-1001",
		InvoiceDate:   &date,
		DueDate:       &due,
		Total:         decimal.RequireFromString("150"),
		Lines: []invoiceapp.VendorBillLine{
			{Description: "Design", Rate: decimal.RequireFromString("50"), Quantity: decimal.RequireFromString("3")},
		},
	}
}

func TestNewZohoClient_Validation(t *testing.T) {
	_, err := NewZohoClient(config.ZohoConfig{OrganizationID: "org"})
	assert.Error(t, err)

	cfg := zohoConfig("http://localhost")
	cfg.OrganizationID = ""
	_, err = NewZohoClient(cfg)
	assert.Error(t, err)
}

func TestZohoClient_CreateVendorBill(t *testing.T) {
	fake := &fakeZoho{contacts: []map[string]any{{"contact_id": "vendor-42", "contact_name": "Acme Corp"}}}
	srv := newFakeZoho(t, fake)

	client, err := NewZohoClient(zohoConfig(srv.URL))
	require.NoError(t, err)

	billID, err := client.CreateVendorBill(context.Background(), billRequest())
	require.NoError(t, err)
	assert.Equal(t, "bill-9", billID)

	body := fake.lastBill.Load().(map[string]any)
	assert.Equal(t, "vendor-42", body["vendor_id"])
	assert.Equal(t, "INV-1001", body["bill_number"])
	assert.Equal(t, "2024-03-01", body["date"])
	assert.Equal(t, "2024-03-31", body["due_date"])
	lines := body["line_items"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	assert.Equal(t, "Design", line["description"])
	assert.Equal(t, float64(50), line["rate"])
	assert.Equal(t, float64(3), line["quantity"])
	assert.Equal(t, "acct-7", line["account_id"])

	// second bill reuses the cached token
	_, err = client.CreateVendorBill(context.Background(), billRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestZohoClient_TokenRefreshOnExpiry(t *testing.T) {
	fake := &fakeZoho{contacts: []map[string]any{{"contact_id": "vendor-42"}}}
	srv := newFakeZoho(t, fake)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewZohoClient(zohoConfig(srv.URL), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = client.CreateVendorBill(context.Background(), billRequest())
	require.NoError(t, err)

	now = now.Add(59*time.Minute + 30*time.Second)
	_, err = client.CreateVendorBill(context.Background(), billRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestZohoClient_CreateVendorBillErrors(t *testing.T) {
	t.Run("vendor not found", func(t *testing.T) {
		srv := newFakeZoho(t, &fakeZoho{})
		client, err := NewZohoClient(zohoConfig(srv.URL))
		require.NoError(t, err)

		_, err = client.CreateVendorBill(context.Background(), billRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `vendor "Acme Corp" not found`)
	})

	t.Run("non zero code", func(t *testing.T) {
		srv := newFakeZoho(t, &fakeZoho{
			contacts: []map[string]any{{"contact_id": "vendor-42"}},
			billCode: 13011,
		})
		client, err := NewZohoClient(zohoConfig(srv.URL))
		require.NoError(t, err)

		_, err = client.CreateVendorBill(context.Background(), billRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code 13011")
		assert.Contains(t, err.Error(), "Bill number already exists")
	})

	t.Run("missing vendor name", func(t *testing.T) {
		client, err := NewZohoClient(zohoConfig("http://127.0.0.1:1"))
		require.NoError(t, err)

		req := billRequest()
		req.VendorName = " "
		_, err = client.CreateVendorBill(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("token refresh rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_code"})
		}))
		defer srv.Close()

		client, err := NewZohoClient(zohoConfig(srv.URL))
		require.NoError(t, err)
		_, err = client.CreateVendorBill(context.Background(), billRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_code")
	})
}

func TestZohoClient_BuildBillWithoutLines(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	client, err := NewZohoClient(zohoConfig("http://localhost"), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	req := billRequest()
	req.InvoiceNumber = ""
	req.InvoiceDate = nil
	req.DueDate = nil
	req.Lines = nil

	bill := client.buildBill("vendor-1", req)
	assert.Equal(t, req.InvoiceID.String(), bill.BillNumber)
	assert.Equal(t, "2024-05-06", bill.Date)
	assert.Empty(t, bill.DueDate)
	require.Len(t, bill.LineItems, 1)
	assert.Equal(t, float64(150), bill.LineItems[0].Rate)
	assert.Equal(t, float64(1), bill.LineItems[0].Quantity)
}
