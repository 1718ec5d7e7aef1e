package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// BatchAPI is the backend surface used for batch lifecycle actions.
type BatchAPI interface {
	StartPipeline(ctx context.Context, req *model.PipelineRequest) (*model.PipelineResponse, error)
	CancelBatch(ctx context.Context, batchID string) (*model.CancelResponse, error)
	DeleteBatch(ctx context.Context, batchID string) (*model.MessageResponse, error)
	GetVideoDownloadURL(ctx context.Context, batchID, productID string) (string, error)
}

// StartPipelineInput is an operator request to process products.
type StartPipelineInput struct {
	Products []model.ProductInput `json:"products" validate:"required,min=1,max=1000,dive"`
	// Limit keeps only the first N products when set.
	Limit int `json:"limit" validate:"omitempty,min=1"`
}

// StartPipelineResult is returned after a batch was accepted.
type StartPipelineResult struct {
	BatchID       string  `json:"batchId"`
	TotalProducts int     `json:"totalProducts"`
	ImageOnly     bool    `json:"imageOnly"`
	ImageModel    string  `json:"imageModel"`
	VideoModel    string  `json:"videoModel"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// BatchService starts, cancels and deletes batches.
type BatchService struct {
	api      BatchAPI
	poller   *Poller
	settings SettingsReader
	pricing  *PricingTable
	validate *validator.Validate
	guard    *inflight
	log      zerolog.Logger
}

func NewBatchService(api BatchAPI, poller *Poller, settings SettingsReader, pricing *PricingTable, validate *validator.Validate, log zerolog.Logger) *BatchService {
	return &BatchService{
		api:      api,
		poller:   poller,
		settings: settings,
		pricing:  pricing,
		validate: validate,
		guard:    newInflight(),
		log:      log.With().Str("component", "batches").Logger(),
	}
}

// StartPipeline submits products using the current settings. Review mode
// submits an image-only run so products stop for review after the image
// stage.
func (s *BatchService) StartPipeline(ctx context.Context, in *StartPipelineInput) (*StartPipelineResult, error) {
	products := in.Products
	if in.Limit > 0 && in.Limit < len(products) {
		products = products[:in.Limit]
	}
	if len(products) == 0 {
		return nil, ErrEmptySelection
	}
	for i := range products {
		if err := s.validate.Struct(&products[i]); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.HasCredential() {
		return nil, ErrMissingCredential
	}

	if !s.guard.acquire("pipeline") {
		return nil, ErrInFlight
	}
	defer s.guard.release("pipeline")

	req := &model.PipelineRequest{
		Products:    products,
		FalAPIKey:   cfg.FalAPIKey,
		ImagePrompt: cfg.ImagePrompt,
		VideoPrompt: cfg.VideoPrompt,
		ImageModel:  cfg.ImageModel,
		VideoModel:  cfg.VideoModel,
		ImageOnly:   cfg.ImageReviewMode,
	}
	resp, err := s.api.StartPipeline(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	total := resp.TotalProducts
	if total == 0 {
		total = len(products)
	}
	s.log.Info().Str("batchId", resp.BatchID).Int("products", total).Bool("imageOnly", req.ImageOnly).Msg("pipeline started")

	if _, err := s.poller.RefreshList(ctx); err != nil {
		s.log.Warn().Err(err).Msg("list refresh after submission failed")
	}

	return &StartPipelineResult{
		BatchID:       resp.BatchID,
		TotalProducts: total,
		ImageOnly:     req.ImageOnly,
		ImageModel:    req.ImageModel,
		VideoModel:    req.VideoModel,
		EstimatedCost: s.pricing.Estimate(total, req.ImageModel, req.VideoModel, req.ImageOnly),
	}, nil
}

// Cancel stops all in-flight work of a batch.
func (s *BatchService) Cancel(ctx context.Context, batchID string) (*model.CancelResponse, error) {
	key := "cancel:" + batchID
	if !s.guard.acquire(key) {
		return nil, ErrInFlight
	}
	defer s.guard.release(key)

	resp, err := s.api.CancelBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel batch: %w", err)
	}
	s.log.Info().Str("batchId", batchID).Int("stopped", resp.StoppedCount).Msg("batch cancelled")

	if s.poller.SelectedBatch() == batchID {
		_, _ = s.poller.RefreshDetail(ctx)
	}
	_, _ = s.poller.RefreshList(ctx)
	return resp, nil
}

// Delete removes a batch. Deleting the open batch closes its view.
func (s *BatchService) Delete(ctx context.Context, batchID string) (*model.MessageResponse, error) {
	key := "delete:" + batchID
	if !s.guard.acquire(key) {
		return nil, ErrInFlight
	}
	defer s.guard.release(key)

	resp, err := s.api.DeleteBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete batch: %w", err)
	}
	s.log.Info().Str("batchId", batchID).Msg("batch deleted")

	s.poller.CloseIf(batchID)
	_, _ = s.poller.RefreshList(ctx)
	return resp, nil
}

// VideoURL resolves the signed URL of one finished video.
func (s *BatchService) VideoURL(ctx context.Context, batchID, productID string) (string, error) {
	u, err := s.api.GetVideoDownloadURL(ctx, batchID, productID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve video URL: %w", err)
	}
	if u == "" {
		return "", ErrNothingResolved
	}
	return u, nil
}
