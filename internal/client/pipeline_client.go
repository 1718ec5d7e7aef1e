package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/config"
	"github.com/bofstudio/pipeline-console/internal/model"
)

// CredentialHeader carries the generation credential on every request.
const CredentialHeader = "X-Fal-Key"

// PipelineAPI defines the operations of the remote batch pipeline backend.
type PipelineAPI interface {
	StartPipeline(ctx context.Context, req *model.PipelineRequest) (*model.PipelineResponse, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*model.BatchDetail, error)
	ReviewBatch(ctx context.Context, batchID string, decisions map[string]model.ReviewVerdict) (*model.ReviewResponse, error)
	CancelBatch(ctx context.Context, batchID string) (*model.CancelResponse, error)
	DeleteBatch(ctx context.Context, batchID string) (*model.MessageResponse, error)
	GetVideoDownloadURL(ctx context.Context, batchID, productID string) (string, error)
	GetDownloadURLs(ctx context.Context, keys []model.ProductKey) ([]model.DownloadURL, error)
}

// CredentialFunc returns the credential to attach to the next request.
// It is called once per request so updates apply immediately.
type CredentialFunc func(ctx context.Context) (string, error)

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pipeline API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pipeline API error (status %d): %s", e.StatusCode, e.Body)
}

// PipelineClient implements PipelineAPI over HTTP.
type PipelineClient struct {
	httpClient *http.Client
	baseURL    string
	credential CredentialFunc
	log        zerolog.Logger
}

// NewPipelineClient creates a new pipeline backend client
func NewPipelineClient(cfg *config.PipelineConfig, credential CredentialFunc, log zerolog.Logger) *PipelineClient {
	return &PipelineClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		credential: credential,
		log:        log.With().Str("component", "pipeline_client").Logger(),
	}
}

// IsConfigured returns true if a backend URL is set
func (c *PipelineClient) IsConfigured() bool {
	return c.baseURL != ""
}

// StartPipeline submits products to POST /upload.
func (c *PipelineClient) StartPipeline(ctx context.Context, req *model.PipelineRequest) (*model.PipelineResponse, error) {
	var result model.PipelineResponse
	if err := c.post(ctx, "/upload", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListBatches returns every batch known to the backend.
func (c *PipelineClient) ListBatches(ctx context.Context) ([]model.Batch, error) {
	var result model.BatchListResponse
	if err := c.get(ctx, "/batches", &result); err != nil {
		return nil, err
	}
	if result.Batches == nil {
		result.Batches = []model.Batch{}
	}
	return result.Batches, nil
}

// GetBatch returns the full detail of one batch.
func (c *PipelineClient) GetBatch(ctx context.Context, batchID string) (*model.BatchDetail, error) {
	var result model.BatchDetail
	if err := c.get(ctx, "/batches/"+url.PathEscape(batchID), &result); err != nil {
		return nil, err
	}
	if result.BatchID == "" {
		result.BatchID = batchID
	}
	return &result, nil
}

// ReviewBatch records verdicts for review-pending products.
func (c *PipelineClient) ReviewBatch(ctx context.Context, batchID string, decisions map[string]model.ReviewVerdict) (*model.ReviewResponse, error) {
	var result model.ReviewResponse
	body := model.ReviewRequest{Decisions: decisions}
	if err := c.post(ctx, "/batches/"+url.PathEscape(batchID)+"/review", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelBatch stops all in-flight work of a batch.
func (c *PipelineClient) CancelBatch(ctx context.Context, batchID string) (*model.CancelResponse, error) {
	var result model.CancelResponse
	if err := c.post(ctx, "/batches/"+url.PathEscape(batchID)+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteBatch removes a batch and its products.
func (c *PipelineClient) DeleteBatch(ctx context.Context, batchID string) (*model.MessageResponse, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/batches/"+url.PathEscape(batchID), nil)
	if err != nil {
		return nil, err
	}
	var result model.MessageResponse
	if err := c.doRequest(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetVideoDownloadURL resolves the signed URL of one stored video.
func (c *PipelineClient) GetVideoDownloadURL(ctx context.Context, batchID, productID string) (string, error) {
	endpoint := fmt.Sprintf("/videos/%s/%s/download", url.PathEscape(batchID), url.PathEscape(productID))
	var result model.SingleDownloadResponse
	if err := c.get(ctx, endpoint, &result); err != nil {
		return "", err
	}
	return result.DownloadURL, nil
}

// GetDownloadURLs resolves signed URLs for many stored videos in one call.
func (c *PipelineClient) GetDownloadURLs(ctx context.Context, keys []model.ProductKey) ([]model.DownloadURL, error) {
	var result model.DownloadURLsResponse
	if err := c.post(ctx, "/videos/download-urls", model.DownloadURLsRequest{Items: keys}, &result); err != nil {
		return nil, err
	}
	return result.URLs, nil
}

// post sends a POST request with JSON body
func (c *PipelineClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *PipelineClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

func (c *PipelineClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.credential != nil {
		key, err := c.credential(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read credential: %w", err)
		}
		req.Header.Set(CredentialHeader, key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRequest executes an HTTP request and parses the response
func (c *PipelineClient) doRequest(req *http.Request, result interface{}) error {
	c.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("→ pipeline request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("pipeline request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("← pipeline response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// newAPIError extracts the backend's {"error": "..."} message when present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	var msg string
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &msg) == nil {
		apiErr.Message = msg
		return apiErr
	}
	var nested struct {
		Message string `json:"message"`
	}
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
		apiErr.Message = nested.Message
		return apiErr
	}
	apiErr.Message = payload.Message
	return apiErr
}
