package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer and meter used for invoice pipeline spans and instruments
const TracerName = "invoiceflow-backend"

// Span attribute keys used by the invoice pipeline.
// Metric attribute keys live in metrics.go.
const (
	SpanAttrInvoiceID     = "invoice_id"
	SpanAttrInvoiceStatus = "invoice_status"
	SpanAttrVendorName    = "vendor_name"
	SpanAttrParser        = "parser"
	SpanAttrFileName      = "file_name"
	SpanAttrContentType   = "content_type"
	SpanAttrLineItems     = "line_items"
	SpanAttrVendorBillID  = "vendor_bill_id"
)

// SpanOption configures a span started by StartSpan
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// WithAttribute sets an attribute when the span starts
func WithAttribute(key string, value any) SpanOption {
	return func(c *spanConfig) {
		c.attrs = append(c.attrs, toAttribute(key, value))
	}
}

// WithSpanKind overrides the default internal span kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// StartSpan starts a span on the global tracer provider. Callers end it.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	cfg := spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(cfg.kind)}
	if len(cfg.attrs) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(cfg.attrs...))
	}
	return otel.Tracer(TracerName).Start(ctx, name, startOpts...)
}

// StartServiceSpan starts a span named "{service}.{method}", e.g. "invoice.upload".
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttributes sets alternating key/value pairs on span. Pairs with a
// non-string key and a trailing unpaired key are ignored.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairs(keyValues)...)
}

// SetAttribute sets one attribute on span
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// RecordError records err on span and marks the span failed
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a named event with key/value attributes to the span in ctx.
// It is a no-op when ctx carries no recording span.
func AddEvent(ctx context.Context, name string, keyValues ...any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(pairs(keyValues)...))
}

func pairs(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
