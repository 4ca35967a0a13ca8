// Package handler holds the gin handlers of the invoice REST API.
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
	"github.com/invoiceflow/backend/internal/interfaces/http/dto"
	"github.com/invoiceflow/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context, falling back to the header
func getRequestID(c *gin.Context) string {
	if id := middleware.GetRequestID(c); id != "" {
		return id
	}
	return c.GetHeader(middleware.HeaderRequestID)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 VALIDATION_ERROR response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, message)
}

// ValidationError sends a 400 response for a request binding error
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError converts an error to an HTTP response. Domain errors keep
// their code and message; anything else is logged and reported as a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	logger.GetGinLogger(c).Error("unhandled request error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

var compactUUID = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// CleanID normalizes an ID taken from a path or body: all whitespace is
// removed and a 32-hex value is expanded to the dashed UUID form.
func CleanID(raw string) string {
	id := strings.Join(strings.Fields(raw), "")
	if compactUUID.MatchString(id) {
		id = id[0:8] + "-" + id[8:12] + "-" + id[12:16] + "-" + id[16:20] + "-" + id[20:32]
	}
	return strings.ToLower(id)
}

// ParseID cleans and parses an ID, reporting a VALIDATION_ERROR naming the field
func ParseID(raw, field string) (uuid.UUID, error) {
	cleaned := CleanID(raw)
	if len(cleaned) != 36 {
		return uuid.Nil, shared.NewDomainError(dto.ErrCodeValidation, "Invalid "+field+" format")
	}
	id, err := uuid.Parse(cleaned)
	if err != nil {
		return uuid.Nil, shared.NewDomainError(dto.ErrCodeValidation, "Invalid "+field+" format")
	}
	return id, nil
}

// pathID parses a path parameter, writing the error response on failure
func (h *BaseHandler) pathID(c *gin.Context, param, field string) (uuid.UUID, bool) {
	id, err := ParseID(c.Param(param), field)
	if err != nil {
		h.HandleError(c, err)
		return uuid.Nil, false
	}
	return id, true
}
