package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MediaFetcher downloads stored media from signed URLs.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPMediaFetcher fetches media over plain HTTP GET. Signed URLs carry
// their own authorization, so no credential header is sent.
type HTTPMediaFetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPMediaFetcher creates a fetcher. maxBytes <= 0 disables the size cap.
func NewHTTPMediaFetcher(timeout time.Duration, maxBytes int64) *HTTPMediaFetcher {
	return &HTTPMediaFetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

func (f *HTTPMediaFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
