package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

const (
	GroundXName           = "GroundX"
	DefaultGroundXBaseURL = "https://api.groundx.ai/api/v1"
)

var (
	_ invoiceapp.DocumentParser     = (*GroundXClient)(nil)
	_ invoiceapp.ConfigurableParser = (*GroundXClient)(nil)
)

// GroundXClient parses documents by ingesting them into a GroundX bucket and reading the X-Ray
type GroundXClient struct {
	http     *resty.Client
	apiKey   string
	bucketID int
	opts     clientOptions
}

// NewGroundXClient creates a GroundX client
func NewGroundXClient(cfg config.GroundXConfig, opts ...ClientOption) *GroundXClient {
	o := newClientOptions(opts)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGroundXBaseURL
	}

	return &GroundXClient{
		http:     newHTTPClient(baseURL, "ocr/groundx", o),
		apiKey:   cfg.APIKey,
		bucketID: cfg.BucketID,
		opts:     o,
	}
}

// Name returns the parser name recorded on invoices
func (c *GroundXClient) Name() string {
	return GroundXName
}

// Configured reports whether an API key is set
func (c *GroundXClient) Configured() bool {
	return c.apiKey != ""
}

// Parse ingests the document, waits for processing and returns the flattened X-Ray
func (c *GroundXClient) Parse(ctx context.Context, doc invoiceapp.Document) (*invoiceapp.Extraction, error) {
	if len(doc.Content) == 0 {
		return nil, ErrEmptyFile
	}
	if !c.Configured() {
		return nil, errors.New("Missing GroundX API key")
	}

	processID, err := c.ingest(ctx, doc)
	if err != nil {
		return nil, err
	}
	c.opts.logger.Debug("GroundX ingest started",
		zap.String("process_id", processID),
		zap.String("file_name", doc.FileName),
	)

	err = poll(ctx, c.opts.pollInterval, c.opts.pollTimeout, func(ctx context.Context) (bool, error) {
		status, err := c.ingestStatus(ctx, processID)
		if err != nil {
			return false, err
		}
		c.opts.logger.Debug("GroundX ingest status", zap.String("process_id", processID), zap.String("status", status))
		switch status {
		case "complete":
			return true, nil
		case "error", "cancelled":
			return false, fmt.Errorf("GroundX ingest %s", status)
		}
		return false, nil
	})
	if errors.Is(err, errPollTimeout) {
		return nil, errors.New("Timeout waiting for GroundX")
	}
	if err != nil {
		return nil, err
	}

	documentID, err := c.firstDocument(ctx, processID)
	if err != nil {
		return nil, err
	}
	xrayURL, err := c.xrayURL(ctx, documentID)
	if err != nil {
		return nil, err
	}
	xray, err := c.fetchXRay(ctx, xrayURL)
	if err != nil {
		return nil, err
	}

	return &invoiceapp.Extraction{Parser: GroundXName, Raw: FlattenXRay(xray)}, nil
}

type groundxIngestResponse struct {
	Ingest struct {
		ProcessID string `json:"processId"`
		Status    string `json:"status"`
	} `json:"ingest"`
}

type groundxDocumentsResponse struct {
	Documents []struct {
		DocumentID string `json:"documentId"`
	} `json:"documents"`
}

type groundxDocumentResponse struct {
	Document struct {
		DocumentID string `json:"documentId"`
		XRayURL    string `json:"xrayUrl"`
	} `json:"document"`
}

func (c *GroundXClient) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("X-API-Key", c.apiKey)
}

func (c *GroundXClient) ingest(ctx context.Context, doc invoiceapp.Document) (string, error) {
	metadata, err := json.Marshal(map[string]any{
		"bucketId": c.bucketID,
		"fileName": doc.FileName,
		"fileType": strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.FileName)), "."),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode GroundX metadata: %w", err)
	}

	var out groundxIngestResponse
	resp, err := c.request(ctx).
		SetMultipartField("blob", doc.FileName, contentTypeFor(doc.FileName), bytes.NewReader(doc.Content)).
		SetMultipartFormData(map[string]string{"metadata": string(metadata)}).
		SetResult(&out).
		Post("/ingest/documents/local")
	if err != nil {
		return "", fmt.Errorf("GroundX ingest failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError(GroundXName, "ingest", resp)
	}
	if out.Ingest.ProcessID == "" {
		return "", errors.New("GroundX returned no process ID")
	}
	return out.Ingest.ProcessID, nil
}

func (c *GroundXClient) ingestStatus(ctx context.Context, processID string) (string, error) {
	var out groundxIngestResponse
	resp, err := c.request(ctx).
		SetPathParam("processID", processID).
		SetResult(&out).
		Get("/ingest/{processID}")
	if err != nil {
		return "", fmt.Errorf("GroundX status check failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError(GroundXName, "status check", resp)
	}
	return strings.ToLower(out.Ingest.Status), nil
}

func (c *GroundXClient) firstDocument(ctx context.Context, processID string) (string, error) {
	var out groundxDocumentsResponse
	resp, err := c.request(ctx).
		SetPathParam("processID", processID).
		SetResult(&out).
		Get("/ingest/{processID}/documents")
	if err != nil {
		return "", fmt.Errorf("GroundX document lookup failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError(GroundXName, "document lookup", resp)
	}
	if len(out.Documents) == 0 || out.Documents[0].DocumentID == "" {
		return "", errors.New("GroundX returned no documents")
	}
	return out.Documents[0].DocumentID, nil
}

func (c *GroundXClient) xrayURL(ctx context.Context, documentID string) (string, error) {
	var out groundxDocumentResponse
	resp, err := c.request(ctx).
		SetPathParam("documentID", documentID).
		SetResult(&out).
		Get("/ingest/document/{documentID}")
	if err != nil {
		return "", fmt.Errorf("GroundX document fetch failed: %w", err)
	}
	if resp.IsError() {
		return "", responseError(GroundXName, "document fetch", resp)
	}
	if out.Document.XRayURL == "" {
		return "", errors.New("GroundX document has no X-Ray URL")
	}
	return out.Document.XRayURL, nil
}

// fetchXRay downloads the X-Ray without the API key; the URL is pre-signed
func (c *GroundXClient) fetchXRay(ctx context.Context, url string) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GroundX X-Ray download failed: %w", err)
	}
	if resp.IsError() {
		return nil, responseError(GroundXName, "X-Ray download", resp)
	}

	var xray map[string]any
	if err := json.Unmarshal(resp.Body(), &xray); err != nil {
		return nil, fmt.Errorf("GroundX X-Ray is not valid JSON: %w", err)
	}
	return xray, nil
}
