// Package ocr holds the hosted document parsers that turn invoice files into raw extractions.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultPollTimeout    = 25 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// ErrEmptyFile is returned for documents without content
var ErrEmptyFile = errors.New("Empty file")

// errPollTimeout is returned by poll when the job did not finish in time
var errPollTimeout = errors.New("poll timeout")

// clientOptions are shared by every parser client
type clientOptions struct {
	logger         *zap.Logger
	pollInterval   time.Duration
	pollTimeout    time.Duration
	requestTimeout time.Duration
	tracing        bool
}

// ClientOption configures a parser client
type ClientOption func(*clientOptions)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPollInterval sets the delay between job status checks
func WithPollInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPollTimeout bounds how long a job is polled
func WithPollTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithRequestTimeout bounds each HTTP request
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithTracing enables client spans for outgoing requests
func WithTracing(enabled bool) ClientOption {
	return func(o *clientOptions) {
		o.tracing = enabled
	}
}

func newClientOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		logger:         zap.NewNop(),
		pollInterval:   DefaultPollInterval,
		pollTimeout:    DefaultPollTimeout,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newHTTPClient(baseURL, tracerName string, o clientOptions) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.requestTimeout).
		SetHeader("Accept", "application/json")
	if o.tracing {
		telemetry.InstrumentResty(client, tracerName)
	}
	return client
}

// poll calls check every interval until it reports done, fails, or the timeout passes
func poll(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errPollTimeout
		case <-ticker.C:
		}
	}
}

// contentTypeFor derives the upload mime type from the file extension
func contentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/pdf"
	}
}

// responseError describes a non-2xx response
func responseError(service, step string, resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Errorf("%s %s failed: %s", service, step, resp.Status())
	}
	return fmt.Errorf("%s %s failed: %s: %s", service, step, resp.Status(), body)
}
