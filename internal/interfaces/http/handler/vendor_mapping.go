package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
)

// VendorMappingUseCases is the vendor mapping application surface used by the handler
type VendorMappingUseCases interface {
	List(ctx context.Context) ([]invoiceapp.VendorMappingResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*invoiceapp.VendorMappingResponse, error)
	Create(ctx context.Context, req invoiceapp.CreateVendorMappingRequest) (*invoiceapp.VendorMappingResponse, error)
	Update(ctx context.Context, id uuid.UUID, req invoiceapp.UpdateVendorMappingRequest) (*invoiceapp.VendorMappingResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// VendorMappingHandler handles vendor mapping CRUD endpoints
type VendorMappingHandler struct {
	BaseHandler
	mappings VendorMappingUseCases
}

// NewVendorMappingHandler creates a new VendorMappingHandler
func NewVendorMappingHandler(mappings VendorMappingUseCases) *VendorMappingHandler {
	return &VendorMappingHandler{mappings: mappings}
}

// List returns all vendor mappings ordered by vendor name
func (h *VendorMappingHandler) List(c *gin.Context) {
	mappings, err := h.mappings.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mappings)
}

// Get returns one vendor mapping
func (h *VendorMappingHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c, "id", "mapping ID")
	if !ok {
		return
	}
	mapping, err := h.mappings.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapping)
}

// Create adds a vendor mapping. Vendor names are unique.
func (h *VendorMappingHandler) Create(c *gin.Context) {
	var req invoiceapp.CreateVendorMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	mapping, err := h.mappings.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, mapping)
}

// Update changes the fields present in the body
func (h *VendorMappingHandler) Update(c *gin.Context) {
	id, ok := h.pathID(c, "id", "mapping ID")
	if !ok {
		return
	}
	var req invoiceapp.UpdateVendorMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	mapping, err := h.mappings.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapping)
}

// Delete removes a vendor mapping
func (h *VendorMappingHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c, "id", "mapping ID")
	if !ok {
		return
	}
	if err := h.mappings.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Vendor mapping deleted successfully"})
}
