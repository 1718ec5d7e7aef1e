package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/model"
)

// fakeBackend is an in-process pipeline backend. It records what the
// console sends and serves stored videos under /media/.
type fakeBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	batches   []model.Batch
	details   map[string]*model.BatchDetail
	media     map[string][]byte
	reviews   []model.ReviewRequest
	pipelines []model.PipelineRequest
	keys      []string
	nextID    int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		details: map[string]*model.BatchDetail{},
		media:   map[string][]byte{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /batches", f.listBatches)
	mux.HandleFunc("GET /batches/{id}", f.getBatch)
	mux.HandleFunc("POST /batches/{id}/review", f.review)
	mux.HandleFunc("POST /batches/{id}/cancel", f.cancel)
	mux.HandleFunc("DELETE /batches/{id}", f.deleteBatch)
	mux.HandleFunc("POST /upload", f.upload)
	mux.HandleFunc("GET /videos/{batch}/{product}/download", f.videoURL)
	mux.HandleFunc("POST /videos/download-urls", f.downloadURLs)
	mux.HandleFunc("GET /media/{name}", f.serveMedia)

	f.server = httptest.NewServer(f.recordKey(mux))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) recordKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.keys = append(f.keys, r.Header.Get(client.CredentialHeader))
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// addBatch registers a batch; its summary is derived from the products.
func (f *fakeBackend) addBatch(batchID string, products ...model.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := map[string]int{}
	for i := range products {
		products[i].BatchID = batchID
		counts[products[i].Status]++
	}
	summary := model.Batch{
		BatchID:       batchID,
		TotalProducts: len(products),
		Status:        string(model.StatusProcessing),
		CreatedAt:     "2024-05-01T10:00:00Z",
		ImageModel:    "fal-ai/flux/schnell",
		VideoModel:    "fal-ai/kling-video/v1.6/standard/image-to-video",
	}
	f.batches = append(f.batches, summary)
	f.details[batchID] = &model.BatchDetail{
		BatchID:      batchID,
		Summary:      summary,
		Products:     products,
		StatusCounts: counts,
	}
}

// addVideo stores bytes served at /media/<name> and returns the URL.
func (f *fakeBackend) addVideo(name string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[name] = data
	return f.server.URL + "/media/" + name
}

func (f *fakeBackend) lastReview() map[string]model.ReviewVerdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reviews) == 0 {
		return nil
	}
	return f.reviews[len(f.reviews)-1].Decisions
}

func (f *fakeBackend) pipelineRequests() []model.PipelineRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PipelineRequest(nil), f.pipelines...)
}

func (f *fakeBackend) credentials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

func (f *fakeBackend) listBatches(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, model.BatchListResponse{Batches: append([]model.Batch{}, f.batches...)})
}

func (f *fakeBackend) getBatch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[r.PathValue("id")]
	if !ok {
		notFound(w, "batch")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (f *fakeBackend) review(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.details[r.PathValue("id")]; !ok {
		notFound(w, "batch")
		return
	}
	f.reviews = append(f.reviews, req)
	writeJSON(w, http.StatusOK, model.ReviewResponse{Message: "ok", Updated: len(req.Decisions)})
}

func (f *fakeBackend) cancel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[r.PathValue("id")]
	if !ok {
		notFound(w, "batch")
		return
	}
	stopped := 0
	for i, p := range d.Products {
		if !model.ProductStatus(p.Status).IsTerminal() {
			d.Products[i].Status = string(model.StatusCancelled)
			stopped++
		}
	}
	d.Summary.Status = string(model.StatusCancelled)
	writeJSON(w, http.StatusOK, model.CancelResponse{Message: "cancelled", StoppedCount: stopped})
}

func (f *fakeBackend) deleteBatch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := f.details[id]; !ok {
		notFound(w, "batch")
		return
	}
	delete(f.details, id)
	kept := f.batches[:0]
	for _, b := range f.batches {
		if b.BatchID != id {
			kept = append(kept, b)
		}
	}
	f.batches = kept
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "deleted"})
}

func (f *fakeBackend) upload(w http.ResponseWriter, r *http.Request) {
	var req model.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipelines = append(f.pipelines, req)
	f.nextID++
	writeJSON(w, http.StatusOK, model.PipelineResponse{
		BatchID:       fmt.Sprintf("batch-new-%d", f.nextID),
		TotalProducts: len(req.Products),
	})
}

func (f *fakeBackend) product(batchID, productID string) (model.Product, bool) {
	d, ok := f.details[batchID]
	if !ok {
		return model.Product{}, false
	}
	return d.Product(productID)
}

func (f *fakeBackend) videoURL(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.product(r.PathValue("batch"), r.PathValue("product"))
	if !ok || p.VideoURL == "" {
		notFound(w, "video")
		return
	}
	writeJSON(w, http.StatusOK, model.SingleDownloadResponse{DownloadURL: p.VideoURL})
}

func (f *fakeBackend) downloadURLs(w http.ResponseWriter, r *http.Request) {
	var req model.DownloadURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	urls := []model.DownloadURL{}
	for _, k := range req.Items {
		p, ok := f.product(k.BatchID, k.ProductID)
		if !ok || p.VideoURL == "" {
			continue
		}
		urls = append(urls, model.DownloadURL{BatchID: k.BatchID, ProductID: k.ProductID, DownloadURL: p.VideoURL, S3Key: p.VideoS3Key})
	}
	writeJSON(w, http.StatusOK, model.DownloadURLsResponse{URLs: urls})
}

func (f *fakeBackend) serveMedia(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data, ok := f.media[r.PathValue("name")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(data)
}

func pendingProduct(id string) model.Product {
	return model.Product{
		ProductID:         id,
		ProductName:       "Product " + id,
		ImgURL:            "https://cdn.example.com/src/" + id + ".jpg",
		Status:            string(model.StatusImageReviewPending),
		GeneratedImageURL: "https://cdn.example.com/gen/" + id + ".png",
		CreatedAt:         "2024-05-01T10:00:00Z",
	}
}

func finishedProduct(id, name, videoURL string) model.Product {
	return model.Product{
		ProductID:   id,
		ProductName: name,
		ImgURL:      "https://cdn.example.com/src/" + id + ".jpg",
		Status:      string(model.StatusCompleted),
		VideoS3Key:  "videos/" + id + ".mp4",
		VideoURL:    videoURL,
		CreatedAt:   "2024-05-01T10:00:00Z",
	}
}
