package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/interfaces/http/middleware"
)

func setupVendorMappingRouter(svc *MockVendorMappingUseCases) *gin.Engine {
	middleware.SetupValidator()
	h := NewVendorMappingHandler(svc)

	r := gin.New()
	r.Use(middleware.RequestID())
	g := r.Group("/api/v1/vendor-mappings")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	return r
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestVendorMappingHandler_Create(t *testing.T) {
	id := uuid.New()

	t.Run("created", func(t *testing.T) {
		svc := new(MockVendorMappingUseCases)
		svc.On("Create", mock.Anything, mock.MatchedBy(func(req invoiceapp.CreateVendorMappingRequest) bool {
			return req.VendorName == "Acme Corp" &&
				req.RegexPatterns["project_number"] == `Project\s+(\d+)` &&
				req.FieldMappings != nil && len(req.FieldMappings.InvoiceNumber) == 1
		})).Return(&invoiceapp.VendorMappingResponse{ID: id, VendorName: "Acme Corp", IsActive: true}, nil)

		w := httptest.NewRecorder()
		setupVendorMappingRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/vendor-mappings", `{
			"vendor_name": "Acme Corp",
			"field_mappings": {"invoice_number": ["doc_no"]},
			"regex_patterns": {"project_number": "Project\\s+(\\d+)"}
		}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, id.String(), data["id"])
		svc.AssertExpectations(t)
	})

	t.Run("missing vendor name", func(t *testing.T) {
		svc := new(MockVendorMappingUseCases)
		w := httptest.NewRecorder()
		setupVendorMappingRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/vendor-mappings", `{"field_mappings":{}}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "vendor_name", resp.Error.Details[0].Field)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("duplicate name", func(t *testing.T) {
		svc := new(MockVendorMappingUseCases)
		svc.On("Create", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError("ALREADY_EXISTS", "Vendor mapping for Acme Corp already exists"))

		w := httptest.NewRecorder()
		setupVendorMappingRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/vendor-mappings", `{"vendor_name":"Acme Corp"}`))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "ALREADY_EXISTS", decodeResponse(t, w).Error.Code)
	})
}

func TestVendorMappingHandler_Update(t *testing.T) {
	id := uuid.New()
	svc := new(MockVendorMappingUseCases)
	svc.On("Update", mock.Anything, id, mock.MatchedBy(func(req invoiceapp.UpdateVendorMappingRequest) bool {
		return req.VendorName == nil && req.IsActive != nil && !*req.IsActive
	})).Return(&invoiceapp.VendorMappingResponse{ID: id, VendorName: "Acme Corp"}, nil)

	w := httptest.NewRecorder()
	setupVendorMappingRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPut, "/api/v1/vendor-mappings/"+id.String(), `{"is_active":false}`))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestVendorMappingHandler_ReadAndDelete(t *testing.T) {
	id := uuid.New()
	svc := new(MockVendorMappingUseCases)
	svc.On("List", mock.Anything).Return([]invoiceapp.VendorMappingResponse{{ID: id, VendorName: "Acme Corp"}}, nil)
	svc.On("Get", mock.Anything, id).Return(&invoiceapp.VendorMappingResponse{ID: id, VendorName: "Acme Corp"}, nil)
	svc.On("Delete", mock.Anything, id).Return(nil)
	missing := uuid.New()
	svc.On("Get", mock.Anything, missing).Return(nil, shared.ErrNotFound)
	router := setupVendorMappingRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vendor-mappings", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w).Data.([]any), 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vendor-mappings/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vendor-mappings/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/vendor-mappings/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/vendor-mappings/not-an-id", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}
