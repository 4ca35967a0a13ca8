package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

// httpMetrics holds all HTTP-related metrics instruments.
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requestTotal, err = telemetry.NewCounter(meter,
		"http_server_request_total", "Total number of HTTP requests", "{request}"); err != nil {
		return nil, err
	}
	if m.requestDuration, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	// uploads dominate request sizes
	if m.requestSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size distribution in bytes",
		Unit:        "By",
		Boundaries:  telemetry.UploadSizeBuckets,
	}); err != nil {
		return nil, err
	}
	if m.responseSize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size distribution in bytes",
		Unit:        "By",
		Boundaries:  []float64{100, 1000, 10000, 100000, 1000000, 10000000},
	}); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics returns a middleware recording request count, latency, sizes
// and in-flight requests on the provider's meter. It is a no-op when metrics
// are disabled.
func HTTPMetrics(mp *telemetry.MeterProvider, logger *zap.Logger) gin.HandlerFunc {
	if mp == nil || !mp.IsEnabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return HTTPMetricsWithMeter(mp.Meter("http.server"), logger)
}

// HTTPMetricsWithMeter returns HTTP metrics middleware using an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter, logger *zap.Logger) gin.HandlerFunc {
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		if logger != nil {
			logger.Warn("HTTP metrics disabled", zap.Error(err))
		}
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		baseAttrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(getRoutePattern(c)),
		}
		metrics.requestTotal.Inc(ctx, append(baseAttrs, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))...)
		metrics.requestDuration.RecordDuration(ctx, time.Since(start), baseAttrs...)

		if size := c.Request.ContentLength; size > 0 {
			metrics.requestSize.Record(ctx, float64(size), baseAttrs...)
		}
		if size := c.Writer.Size(); size > 0 {
			metrics.responseSize.Record(ctx, float64(size), baseAttrs...)
		}
	}
}

// getRoutePattern returns the matched route ("/api/v1/invoices/:id") rather
// than the raw path to keep label cardinality bounded.
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
