package router

import (
	"github.com/invoiceflow/backend/internal/interfaces/http/handler"
)

// InvoiceRoutes maps the invoice endpoints under /invoices
func InvoiceRoutes(h *handler.InvoiceHandler) *DomainGroup {
	invoices := NewDomainGroup("/invoices").
		POST("/upload", h.Upload).
		GET("", h.List).
		GET("/export", h.Export).
		POST("/delete-multiple", h.DeleteMany)

	invoices.Group("/:id").
		GET("", h.Get).
		GET("/document", h.Document).
		DELETE("", h.Delete).
		POST("/vendor-bill", h.CreateVendorBill).
		POST("/apply-mapping/:mapping_id", h.ApplyMapping)

	return invoices
}

// VendorMappingRoutes maps the vendor mapping CRUD endpoints under /vendor-mappings
func VendorMappingRoutes(h *handler.VendorMappingHandler) *DomainGroup {
	return NewDomainGroup("/vendor-mappings").
		GET("", h.List).
		POST("", h.Create).
		GET("/:id", h.Get).
		PUT("/:id", h.Update).
		DELETE("/:id", h.Delete)
}
