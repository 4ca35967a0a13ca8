package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	invoiceIDKey contextKey = "invoice_id"
	subjectKey   contextKey = "subject"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, returning a no-op logger if none is attached
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, zap.NewNop())
}

// FromContextOr retrieves the logger from context, returning fallback if none is attached
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// WithRequestID stores the request ID and attaches a logger carrying it
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithInvoiceID stores the invoice being processed and attaches a logger carrying it
func WithInvoiceID(ctx context.Context, invoiceID string) context.Context {
	ctx = context.WithValue(ctx, invoiceIDKey, invoiceID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("invoice_id", invoiceID)))
}

// WithSubject stores the authenticated token subject
func WithSubject(ctx context.Context, subject string) context.Context {
	ctx = context.WithValue(ctx, subjectKey, subject)
	return WithContext(ctx, FromContext(ctx).With(zap.String("subject", subject)))
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetInvoiceID retrieves the invoice ID from context
func GetInvoiceID(ctx context.Context) string {
	id, _ := ctx.Value(invoiceIDKey).(string)
	return id
}

// GetSubject retrieves the authenticated subject from context
func GetSubject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// GetTraceID extracts the trace ID from the context's span, or "" without a valid span
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// L returns the context logger with trace_id and span_id added when a span is active
func L(ctx context.Context) *zap.Logger {
	return withSpan(ctx, FromContext(ctx))
}

// LOr is L for contexts that may carry no logger, such as background jobs
func LOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	return withSpan(ctx, FromContextOr(ctx, fallback))
}

func withSpan(ctx context.Context, l *zap.Logger) *zap.Logger {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		return l
	}
	return l.With(
		zap.String("trace_id", traceID),
		zap.String("span_id", trace.SpanContextFromContext(ctx).SpanID().String()),
	)
}
