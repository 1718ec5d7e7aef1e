package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// fakeBackend is an in-memory pipeline backend.
type fakeBackend struct {
	mu sync.Mutex

	batches []model.Batch
	details map[string]*model.BatchDetail
	urls    map[model.ProductKey]string

	listErr     error
	detailErr   error
	reviewErr   error
	pipelineErr error

	// block, when set, holds GetBatch until it is closed.
	block chan struct{}

	listCalls    int
	detailCalls  map[string]int
	reviews      []map[string]model.ReviewVerdict
	pipelines    []*model.PipelineRequest
	cancelled    []string
	deleted      []string
	nextBatchSeq int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		details:     map[string]*model.BatchDetail{},
		urls:        map[model.ProductKey]string{},
		detailCalls: map[string]int{},
	}
}

func (f *fakeBackend) ListBatches(ctx context.Context) ([]model.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Batch(nil), f.batches...), nil
}

func (f *fakeBackend) GetBatch(ctx context.Context, batchID string) (*model.BatchDetail, error) {
	f.mu.Lock()
	f.detailCalls[batchID]++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, ok := f.details[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	cp := *d
	cp.Products = append([]model.Product(nil), d.Products...)
	return &cp, nil
}

func (f *fakeBackend) StartPipeline(ctx context.Context, req *model.PipelineRequest) (*model.PipelineResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pipelineErr != nil {
		return nil, f.pipelineErr
	}
	f.pipelines = append(f.pipelines, req)
	f.nextBatchSeq++
	return &model.PipelineResponse{
		BatchID:       fmt.Sprintf("new-%d", f.nextBatchSeq),
		TotalProducts: len(req.Products),
	}, nil
}

func (f *fakeBackend) ReviewBatch(ctx context.Context, batchID string, decisions map[string]model.ReviewVerdict) (*model.ReviewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.reviews = append(f.reviews, decisions)
	return &model.ReviewResponse{Message: "ok", Updated: len(decisions)}, nil
}

func (f *fakeBackend) CancelBatch(ctx context.Context, batchID string) (*model.CancelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, batchID)
	return &model.CancelResponse{Message: "cancelled", StoppedCount: 2}, nil
}

func (f *fakeBackend) DeleteBatch(ctx context.Context, batchID string) (*model.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, batchID)
	return &model.MessageResponse{Message: "deleted"}, nil
}

func (f *fakeBackend) GetVideoDownloadURL(ctx context.Context, batchID, productID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urls[model.ProductKey{BatchID: batchID, ProductID: productID}], nil
}

func (f *fakeBackend) GetDownloadURLs(ctx context.Context, keys []model.ProductKey) ([]model.DownloadURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DownloadURL
	for _, k := range keys {
		if u, ok := f.urls[k]; ok {
			out = append(out, model.DownloadURL{
				BatchID:     k.BatchID,
				ProductID:   k.ProductID,
				DownloadURL: u,
				S3Key:       "videos/" + k.String() + ".mp4",
			})
		}
	}
	return out, nil
}

func (f *fakeBackend) setDetail(d *model.BatchDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[d.BatchID] = d
}

func (f *fakeBackend) detailCount(batchID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[batchID]
}

func (f *fakeBackend) lastReview() map[string]model.ReviewVerdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reviews) == 0 {
		return nil
	}
	return f.reviews[len(f.reviews)-1]
}

// manualClock hands out tickers that only fire when the test says so.
type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualClock) NewTicker(time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	m.tickers = append(m.tickers, t)
	return t
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// tick fires ticker i and reports whether a loop received it.
func (m *manualClock) tick(i int) bool {
	m.mu.Lock()
	t := m.tickers[i]
	m.mu.Unlock()
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func (m *manualClock) ticker(i int) *manualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickers[i]
}

func (m *manualClock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

type fakeSettings struct {
	settings model.Settings
	err      error
}

func (f *fakeSettings) Get(context.Context) (model.Settings, error) {
	return f.settings, f.err
}

func credentialedSettings() *fakeSettings {
	return &fakeSettings{settings: model.Settings{
		FalAPIKey:   "fal-secret-1234",
		ImagePrompt: "image prompt",
		VideoPrompt: "video prompt",
		ImageModel:  "fal-ai/nano-banana-pro/edit",
		VideoModel:  "fal-ai/kling-video/v2.6/pro/image-to-video",
	}}
}

// fakeFetcher serves bytes by URL and fails for URLs in fail.
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  map[string]bool
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return nil, errors.New("HTTP 403")
	}
	return f.data[url], nil
}

func reviewDetail(batchID string, pending ...string) *model.BatchDetail {
	d := &model.BatchDetail{
		BatchID: batchID,
		Summary: model.Batch{BatchID: batchID, Status: "IMAGE_REVIEW_PENDING", TotalProducts: len(pending)},
	}
	for _, id := range pending {
		d.Products = append(d.Products, model.Product{
			BatchID:           batchID,
			ProductID:         id,
			ProductName:       "Product " + id,
			ImgURL:            "https://cdn.example.com/src/" + id + ".jpg",
			Status:            string(model.StatusImageReviewPending),
			GeneratedImageURL: "https://cdn.example.com/gen/" + id + ".png",
		})
	}
	return d
}
