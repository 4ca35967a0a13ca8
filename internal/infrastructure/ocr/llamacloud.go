package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

const (
	LlamaCloudName           = "LlamaCloud"
	DefaultLlamaCloudBaseURL = "https://api.cloud.llamaindex.ai"
)

var (
	_ invoiceapp.DocumentParser     = (*LlamaCloudClient)(nil)
	_ invoiceapp.ConfigurableParser = (*LlamaCloudClient)(nil)
)

// LlamaCloudClient parses documents with the LlamaCloud parsing API
type LlamaCloudClient struct {
	http   *resty.Client
	apiKey string
	opts   clientOptions
}

// NewLlamaCloudClient creates a LlamaCloud client
func NewLlamaCloudClient(cfg config.LlamaCloudConfig, opts ...ClientOption) *LlamaCloudClient {
	o := newClientOptions(opts)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultLlamaCloudBaseURL
	}

	client := newHTTPClient(baseURL, "ocr/llamacloud", o)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &LlamaCloudClient{
		http:   client,
		apiKey: cfg.APIKey,
		opts:   o,
	}
}

// Name returns the parser name recorded on invoices
func (c *LlamaCloudClient) Name() string {
	return LlamaCloudName
}

// Configured reports whether an API key is set
func (c *LlamaCloudClient) Configured() bool {
	return c.apiKey != ""
}

// Parse uploads the document and waits for the parsing job to finish
func (c *LlamaCloudClient) Parse(ctx context.Context, doc invoiceapp.Document) (*invoiceapp.Extraction, error) {
	if len(doc.Content) == 0 {
		return nil, ErrEmptyFile
	}
	if !c.Configured() {
		return nil, errors.New("Missing LlamaCloud API key")
	}

	jobID, err := c.upload(ctx, doc)
	if err != nil {
		return nil, err
	}
	c.opts.logger.Debug("LlamaCloud job created",
		zap.String("job_id", jobID),
		zap.String("file_name", doc.FileName),
	)

	var result map[string]any
	err = poll(ctx, c.opts.pollInterval, c.opts.pollTimeout, func(ctx context.Context) (bool, error) {
		status, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return false, err
		}

		state := strings.ToUpper(stringField(status, "status"))
		c.opts.logger.Debug("LlamaCloud job status", zap.String("job_id", jobID), zap.String("status", state))
		switch state {
		case "COMPLETE", "SUCCESS":
			result = status
			return true, nil
		case "FAILED", "ERROR":
			msg := stringField(status, "error")
			if msg == "" {
				msg = "Unknown"
			}
			return false, fmt.Errorf("LlamaCloud error: %s", msg)
		}
		return false, nil
	})
	if errors.Is(err, errPollTimeout) {
		return nil, errors.New("Timeout waiting for LlamaCloud")
	}
	if err != nil {
		return nil, err
	}

	return &invoiceapp.Extraction{Parser: LlamaCloudName, Raw: result}, nil
}

type llamaUploadResponse struct {
	ID string `json:"id"`
}

func (c *LlamaCloudClient) upload(ctx context.Context, doc invoiceapp.Document) (string, error) {
	var out llamaUploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", doc.FileName, contentTypeFor(doc.FileName), bytes.NewReader(doc.Content)).
		SetResult(&out).
		Post("/api/parsing/upload")
	if err != nil {
		return "", fmt.Errorf("LlamaCloud upload failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError(LlamaCloudName, "upload", resp)
	}
	if out.ID == "" {
		return "", fmt.Errorf("No job ID returned: %s", strings.TrimSpace(resp.String()))
	}
	return out.ID, nil
}

func (c *LlamaCloudClient) jobStatus(ctx context.Context, jobID string) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("jobID", jobID).
		Get("/api/parsing/job/{jobID}")
	if err != nil {
		return nil, fmt.Errorf("LlamaCloud status check failed: %w", err)
	}
	if resp.IsError() {
		return nil, responseError(LlamaCloudName, "status check", resp)
	}

	var status map[string]any
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("LlamaCloud returned invalid JSON: %w", err)
	}
	return status, nil
}

// stringField renders a scalar field as text; missing and null fields are empty
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
