package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a global tracer provider backed by an in-memory recorder
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrsOf(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartServiceSpan(t *testing.T) {
	sr := recordSpans(t)

	ctx, span := telemetry.StartServiceSpan(context.Background(), "invoice", "upload",
		telemetry.WithAttribute(telemetry.SpanAttrFileName, "acme.pdf"),
	)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "invoice.upload", ended[0].Name())
	assert.Equal(t, trace.SpanKindInternal, ended[0].SpanKind())
	assert.Equal(t, "acme.pdf", attrsOf(ended[0])[telemetry.SpanAttrFileName].AsString())
	assert.Equal(t, telemetry.TracerName, ended[0].InstrumentationScope().Name)
}

func TestStartSpan_Kind(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartSpan(context.Background(), "llamacloud.upload", telemetry.WithSpanKind(trace.SpanKindClient))
	span.End()

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, trace.SpanKindClient, sr.Ended()[0].SpanKind())
}

func TestStartSpan_Nested(t *testing.T) {
	sr := recordSpans(t)

	ctx, parent := telemetry.StartServiceSpan(context.Background(), "invoice", "upload")
	_, child := telemetry.StartSpan(ctx, "event.InvoiceParsed")
	child.End()
	parent.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, ended[1].SpanContext().TraceID(), ended[0].SpanContext().TraceID())
}

func TestSetAttributes(t *testing.T) {
	sr := recordSpans(t)
	id := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "invoice.upload")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, id,
		telemetry.SpanAttrLineItems, 3,
		telemetry.SpanAttrParser, "LlamaCloud",
		42, "non-string key is skipped",
		"dangling",
	)
	telemetry.SetAttribute(span, telemetry.SpanAttrVendorBillID, "TEST-VENDOR-BILL-ID-1")
	span.End()

	attrs := attrsOf(sr.Ended()[0])
	assert.Len(t, attrs, 4)
	assert.Equal(t, id.String(), attrs[telemetry.SpanAttrInvoiceID].AsString())
	assert.Equal(t, int64(3), attrs[telemetry.SpanAttrLineItems].AsInt64())
	assert.Equal(t, "LlamaCloud", attrs[telemetry.SpanAttrParser].AsString())
	assert.Equal(t, "TEST-VENDOR-BILL-ID-1", attrs[telemetry.SpanAttrVendorBillID].AsString())
}

func TestSetAttributes_ValueTypes(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartSpan(context.Background(), "types")
	telemetry.SetAttributes(span,
		"i64", int64(7),
		"f", 1.5,
		"b", true,
		"ss", []string{"a", "b"},
		"other", struct{ N int }{1},
	)
	span.End()

	attrs := attrsOf(sr.Ended()[0])
	assert.Equal(t, int64(7), attrs["i64"].AsInt64())
	assert.Equal(t, 1.5, attrs["f"].AsFloat64())
	assert.True(t, attrs["b"].AsBool())
	assert.Equal(t, []string{"a", "b"}, attrs["ss"].AsStringSlice())
	assert.Equal(t, "{1}", attrs["other"].AsString())
}

func TestRecordError(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartSpan(context.Background(), "invoice.create_vendor_bill")
	telemetry.RecordError(span, errors.New("zoho returned 500"))
	span.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "zoho returned 500", s.Status().Description)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestRecordError_NilError(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartSpan(context.Background(), "ok")
	telemetry.RecordError(span, nil)
	span.End()

	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
	assert.Empty(t, sr.Ended()[0].Events())
}

func TestAddEvent(t *testing.T) {
	sr := recordSpans(t)

	ctx, span := telemetry.StartSpan(context.Background(), "invoice.upload")
	telemetry.AddEvent(ctx, "parser_fallback", "from", "LlamaCloud", "to", "GroundX")
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "parser_fallback", events[0].Name)
	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.String("from", "LlamaCloud"),
		attribute.String("to", "GroundX"),
	}, events[0].Attributes)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.RecordError(nil, errors.New("boom"))
		telemetry.AddEvent(context.Background(), "no span")
	})
}
