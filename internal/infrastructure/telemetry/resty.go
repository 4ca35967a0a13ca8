package telemetry

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentResty starts a client span for every request sent through the resty client.
// Request and response bodies are never recorded; they carry invoice documents and credentials.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(semconv.HTTPRequestMethodKey.String(req.Method)),
		)
		req.SetContext(ctx)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()

		span.SetAttributes(semconv.HTTPResponseStatusCode(res.StatusCode()))
		if res.Request.RawRequest != nil {
			span.SetAttributes(
				semconv.URLPath(res.Request.RawRequest.URL.Path),
				semconv.ServerAddress(res.Request.RawRequest.URL.Hostname()),
			)
		}
		if res.IsError() {
			span.SetStatus(codes.Error, res.Status())
		}
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if req.RawRequest != nil {
			span.SetAttributes(semconv.URLPath(req.RawRequest.URL.Path))
		}
	})
}
