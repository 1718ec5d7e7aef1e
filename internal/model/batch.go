package model

// Batch is one submitted run of the pipeline as listed by GET /batches.
// Timestamps are kept as the ISO-8601 strings the backend sends.
type Batch struct {
	BatchID       string `json:"batchId"`
	ProductID     string `json:"productId,omitempty"`
	ItemType      string `json:"itemType,omitempty"`
	TotalProducts int    `json:"totalProducts"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	ImageOnly     bool   `json:"imageOnly,omitempty"`
	ImageModel    string `json:"imageModel,omitempty"`
	VideoModel    string `json:"videoModel,omitempty"`
}

// Product is a single item inside a batch.
type Product struct {
	BatchID             string `json:"batchId"`
	ProductID           string `json:"productId"`
	ProductName         string `json:"productName"`
	ImgURL              string `json:"imgUrl"`
	Category            string `json:"category,omitempty"`
	Price               string `json:"price,omitempty"`
	Status              string `json:"status"`
	GeneratedImageURL   string `json:"generatedImageUrl,omitempty"`
	VideoS3Key          string `json:"videoS3Key,omitempty"`
	VideoURL            string `json:"videoUrl,omitempty"`
	Error               string `json:"error,omitempty"`
	CreatedAt           string `json:"createdAt"`
	CompletedAt         string `json:"completedAt,omitempty"`
	SkipImageGeneration bool   `json:"skipImageGeneration,omitempty"`
	ExistingImageURL    string `json:"existingImageUrl,omitempty"`
}

// Reviewable reports whether the product is waiting for an operator verdict.
func (p Product) Reviewable() bool {
	return ProductStatus(p.Status) == StatusImageReviewPending && p.GeneratedImageURL != ""
}

// HasVideo reports whether a finished video is stored for the product.
func (p Product) HasVideo() bool {
	return ProductStatus(p.Status) == StatusCompleted && p.VideoS3Key != ""
}

// Key returns the composite identifier of the product.
func (p Product) Key() ProductKey {
	return ProductKey{BatchID: p.BatchID, ProductID: p.ProductID}
}

// BatchDetail is the full view of one batch as returned by GET /batches/{id}.
type BatchDetail struct {
	BatchID      string         `json:"batchId"`
	Summary      Batch          `json:"summary"`
	Products     []Product      `json:"products"`
	StatusCounts map[string]int `json:"statusCounts"`
}

// Product returns the product with the given id, if present.
func (d *BatchDetail) Product(productID string) (Product, bool) {
	for _, p := range d.Products {
		if p.ProductID == productID {
			return p, true
		}
	}
	return Product{}, false
}

// ReviewPending returns the products currently awaiting review, in order.
func (d *BatchDetail) ReviewPending() []Product {
	var out []Product
	for _, p := range d.Products {
		if p.Reviewable() {
			out = append(out, p)
		}
	}
	return out
}

// ProductKey addresses one product across batches.
type ProductKey struct {
	BatchID   string `json:"batchId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
}

func (k ProductKey) String() string {
	return k.BatchID + "/" + k.ProductID
}

// ProductInput is one product handed to the pipeline.
type ProductInput struct {
	ProductName         string `json:"productName" validate:"required,max=300"`
	ImgURL              string `json:"imgUrl" validate:"required,url"`
	Category            string `json:"category,omitempty" validate:"omitempty,max=200"`
	Price               string `json:"price,omitempty" validate:"omitempty,max=50"`
	SkipImageGeneration bool   `json:"skipImageGeneration,omitempty"`
	ExistingImageURL    string `json:"existingImageUrl,omitempty" validate:"omitempty,url"`
}

// PipelineRequest is the POST /upload body.
type PipelineRequest struct {
	Products    []ProductInput `json:"products"`
	FalAPIKey   string         `json:"falApiKey"`
	ImagePrompt string         `json:"imagePrompt"`
	VideoPrompt string         `json:"videoPrompt"`
	ImageModel  string         `json:"imageModel"`
	VideoModel  string         `json:"videoModel"`
	ImageOnly   bool           `json:"imageOnly,omitempty"`
}

// PipelineResponse is what the backend returns for POST /upload.
type PipelineResponse struct {
	BatchID       string `json:"batchId"`
	TotalProducts int    `json:"totalProducts"`
}

// BatchListResponse is the GET /batches answer.
type BatchListResponse struct {
	Batches []Batch `json:"batches"`
}

// ReviewRequest is the POST /batches/{id}/review body.
type ReviewRequest struct {
	Decisions map[string]ReviewVerdict `json:"decisions"`
}

// ReviewResponse is the backend answer to a review submission.
type ReviewResponse struct {
	Message string `json:"message"`
	Updated int    `json:"updated"`
}

// CancelResponse is the backend answer to a cancel request.
type CancelResponse struct {
	Message      string `json:"message"`
	StoppedCount int    `json:"stoppedCount"`
}

// MessageResponse is a generic acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// DownloadURL is one resolved signed URL for a stored video.
type DownloadURL struct {
	BatchID     string `json:"batchId"`
	ProductID   string `json:"productId"`
	DownloadURL string `json:"downloadUrl"`
	S3Key       string `json:"s3Key,omitempty"`
}

// DownloadURLsRequest is the POST /videos/download-urls body.
type DownloadURLsRequest struct {
	Items []ProductKey `json:"items"`
}

// DownloadURLsResponse is the POST /videos/download-urls answer.
type DownloadURLsResponse struct {
	URLs []DownloadURL `json:"urls"`
}

// SingleDownloadResponse is the GET /videos/{b}/{p}/download answer.
type SingleDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}
