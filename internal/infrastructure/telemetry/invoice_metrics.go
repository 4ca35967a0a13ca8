package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// InvoiceMetrics records the invoice intake pipeline: uploads, parser
// attempts and fallbacks, final outcomes and vendor bills.
type InvoiceMetrics struct {
	logger *zap.Logger

	uploadsTotal    *Counter
	uploadBytes     *Histogram
	parseAttempts   *Counter
	parseDuration   *Histogram
	parseFallbacks  *Counter
	invoicesTotal   *Counter
	lineItemsTotal  *Counter
	vendorBillTotal *Counter
}

// NewInvoiceMetrics registers the invoice instruments on the meter.
func NewInvoiceMetrics(meter metric.Meter, logger *zap.Logger) (*InvoiceMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &InvoiceMetrics{logger: logger}

	var err error
	if m.uploadsTotal, err = NewCounter(meter,
		"invoice_uploads_total", "Accepted invoice uploads", "{upload}"); err != nil {
		return nil, err
	}
	if m.uploadBytes, err = NewHistogram(meter, HistogramOpts{
		Name:        "invoice_upload_size_bytes",
		Description: "Size of accepted invoice documents",
		Unit:        "By",
		Boundaries:  UploadSizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.parseAttempts, err = NewCounter(meter,
		"invoice_parse_attempts_total", "OCR parser attempts by parser and outcome", "{attempt}"); err != nil {
		return nil, err
	}
	if m.parseDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "invoice_parse_duration_seconds",
		Description: "Duration of OCR parser attempts",
		Unit:        "s",
		Boundaries:  ParseDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.parseFallbacks, err = NewCounter(meter,
		"invoice_parse_fallbacks_total", "Parser fallbacks after a failed attempt", "{fallback}"); err != nil {
		return nil, err
	}
	if m.invoicesTotal, err = NewCounter(meter,
		"invoices_processed_total", "Invoices reaching a terminal status", "{invoice}"); err != nil {
		return nil, err
	}
	if m.lineItemsTotal, err = NewCounter(meter,
		"invoice_line_items_total", "Line items extracted from parsed invoices", "{item}"); err != nil {
		return nil, err
	}
	if m.vendorBillTotal, err = NewCounter(meter,
		"invoice_vendor_bills_total", "Vendor bills created in the accounting system", "{bill}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordUpload counts an accepted upload.
func (m *InvoiceMetrics) RecordUpload(ctx context.Context, contentType string, size int) {
	ct := attribute.String(string(AttrContentType), contentType)
	m.uploadsTotal.Inc(ctx, ct)
	m.uploadBytes.Record(ctx, float64(size), ct)
}

// ObserveParse records one parser attempt.
func (m *InvoiceMetrics) ObserveParse(ctx context.Context, parser string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	attrs := []attribute.KeyValue{AttrParser.String(parser), AttrOutcome.String(outcome)}
	m.parseAttempts.Inc(ctx, attrs...)
	m.parseDuration.RecordDuration(ctx, duration, attrs...)
}

// ObserveFallback counts a switch from one parser to the next.
func (m *InvoiceMetrics) ObserveFallback(ctx context.Context, from, to string) {
	m.parseFallbacks.Inc(ctx, AttrFromParser.String(from), AttrToParser.String(to))
	m.logger.Debug("parser fallback", zap.String("from", from), zap.String("to", to))
}

// RecordParsed counts a completed invoice and its line items.
func (m *InvoiceMetrics) RecordParsed(ctx context.Context, parser string, lineItems int) {
	m.invoicesTotal.Inc(ctx, AttrOutcome.String(OutcomeSuccess), AttrParser.String(parser))
	if lineItems > 0 {
		m.lineItemsTotal.Add(ctx, int64(lineItems), AttrParser.String(parser))
	}
}

// RecordFailed counts a failed invoice. Sweeper timeouts get their own outcome.
func (m *InvoiceMetrics) RecordFailed(ctx context.Context, timedOut bool) {
	outcome := OutcomeFailure
	if timedOut {
		outcome = OutcomeTimeout
	}
	m.invoicesTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordVendorBill counts a created vendor bill.
func (m *InvoiceMetrics) RecordVendorBill(ctx context.Context) {
	m.vendorBillTotal.Inc(ctx)
}
