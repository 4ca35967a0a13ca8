package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestInvoiceMetrics(t *testing.T) (*InvoiceMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewInvoiceMetrics(provider.Meter("test"), nil)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// sumFor returns the counter value for the data point matching all attrs
func sumFor(t *testing.T, data metricdata.Aggregation, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestInvoiceMetrics_Uploads(t *testing.T) {
	m, reader := newTestInvoiceMetrics(t)
	ctx := context.Background()

	m.RecordUpload(ctx, "application/pdf", 2048)
	m.RecordUpload(ctx, "application/pdf", 4096)
	m.RecordUpload(ctx, "image/png", 100)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["invoice_uploads_total"], AttrContentType.String("application/pdf")))
	assert.Equal(t, int64(1), sumFor(t, data["invoice_uploads_total"], AttrContentType.String("image/png")))

	hist, ok := data["invoice_upload_size_bytes"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(3), total)
}

func TestInvoiceMetrics_ParseAttemptsAndFallbacks(t *testing.T) {
	m, reader := newTestInvoiceMetrics(t)
	ctx := context.Background()

	m.ObserveParse(ctx, "LlamaCloud", 3*time.Second, errors.New("LlamaCloud error: Unknown"))
	m.ObserveFallback(ctx, "LlamaCloud", "GroundX")
	m.ObserveParse(ctx, "GroundX", 5*time.Second, nil)

	data := collect(t, reader)
	attempts := data["invoice_parse_attempts_total"]
	assert.Equal(t, int64(1), sumFor(t, attempts, AttrParser.String("LlamaCloud"), AttrOutcome.String(OutcomeFailure)))
	assert.Equal(t, int64(1), sumFor(t, attempts, AttrParser.String("GroundX"), AttrOutcome.String(OutcomeSuccess)))
	assert.Equal(t, int64(1), sumFor(t, data["invoice_parse_fallbacks_total"],
		AttrFromParser.String("LlamaCloud"), AttrToParser.String("GroundX")))

	hist, ok := data["invoice_parse_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 2)
}

func TestInvoiceMetrics_Outcomes(t *testing.T) {
	m, reader := newTestInvoiceMetrics(t)
	ctx := context.Background()

	m.RecordParsed(ctx, "LlamaCloud", 4)
	m.RecordParsed(ctx, "LlamaCloud", 0)
	m.RecordFailed(ctx, false)
	m.RecordFailed(ctx, true)
	m.RecordFailed(ctx, true)
	m.RecordVendorBill(ctx)

	data := collect(t, reader)
	processed := data["invoices_processed_total"]
	assert.Equal(t, int64(2), sumFor(t, processed, AttrOutcome.String(OutcomeSuccess), AttrParser.String("LlamaCloud")))
	assert.Equal(t, int64(1), sumFor(t, processed, AttrOutcome.String(OutcomeFailure)))
	assert.Equal(t, int64(2), sumFor(t, processed, AttrOutcome.String(OutcomeTimeout)))
	assert.Equal(t, int64(4), sumFor(t, data["invoice_line_items_total"], AttrParser.String("LlamaCloud")))
	assert.Equal(t, int64(1), sumFor(t, data["invoice_vendor_bills_total"]))
}
