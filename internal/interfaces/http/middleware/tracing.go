package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

// InvoiceIDKey is the gin context key handlers set for the invoice they act on
const InvoiceIDKey = "invoice_id"

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// TracerProvider overrides the global provider when set
	TracerProvider trace.TracerProvider
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: telemetry.TracerName,
		Enabled:     true,
	}
}

// TracingWithConfig returns the otelgin middleware. Spans are named
// "METHOD route" and 5xx responses are marked as errors by otelgin.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes enriches the request span. It must run after the tracing,
// RequestID and JWT middleware so their values are already on the context.
//   - request_id: from RequestID
//   - subject: from the validated token
//   - invoice_id: set by invoice handlers
//
// 4xx responses are marked as errors too, except 404.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}

		c.Next()

		if subject := GetJWTSubject(c); subject != "" {
			span.SetAttributes(attribute.String("subject", subject))
		}
		if id := c.GetString(InvoiceIDKey); id != "" {
			span.SetAttributes(attribute.String(telemetry.SpanAttrInvoiceID, id))
		}

		status := c.Writer.Status()
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusNotFound {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
