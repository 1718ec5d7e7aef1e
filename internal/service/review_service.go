package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// ErrNotReviewable is returned when toggling a product that is not waiting
// for review in the open batch.
var ErrNotReviewable = errors.New("product is not awaiting review")

// PipelineWriter is the side-effecting part of the backend the review
// workflow needs.
type PipelineWriter interface {
	StartPipeline(ctx context.Context, req *model.PipelineRequest) (*model.PipelineResponse, error)
	ReviewBatch(ctx context.Context, batchID string, decisions map[string]model.ReviewVerdict) (*model.ReviewResponse, error)
}

// SettingsReader gives read access to the operator settings.
type SettingsReader interface {
	Get(ctx context.Context) (model.Settings, error)
}

// ReviewOutcome describes what a review submission sent.
type ReviewOutcome struct {
	BatchID     string                         `json:"batchId"`
	Decisions   map[string]model.ReviewVerdict `json:"decisions"`
	Updated     int                            `json:"updated"`
	Resubmitted int                            `json:"resubmitted"`
	NewBatchID  string                         `json:"newBatchId,omitempty"`
	NoOp        bool                           `json:"noop,omitempty"`
}

// ReviewService drives the image review workflow for the open batch.
type ReviewService struct {
	api       PipelineWriter
	poller    *Poller
	decisions *DecisionStore
	settings  SettingsReader
	guard     *inflight
	log       zerolog.Logger
}

func NewReviewService(api PipelineWriter, poller *Poller, decisions *DecisionStore, settings SettingsReader, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		api:       api,
		poller:    poller,
		decisions: decisions,
		settings:  settings,
		guard:     newInflight(),
		log:       log.With().Str("component", "review").Logger(),
	}
}

// Submitting reports whether a submission for batchID is in flight.
func (s *ReviewService) Submitting(batchID string) bool {
	return s.guard.busy(reviewKey(batchID))
}

func reviewKey(batchID string) string { return "review:" + batchID }

// ToggleDecision flips a product between approved, rejected and undecided.
func (s *ReviewService) ToggleDecision(batchID, productID string, approved bool) (map[string]bool, error) {
	detail, err := s.openDetail(batchID)
	if err != nil {
		return nil, err
	}
	p, ok := detail.Product(productID)
	if !ok || !p.Reviewable() {
		return nil, ErrNotReviewable
	}
	if err := s.decisions.Toggle(batchID, productID, approved); err != nil {
		return nil, err
	}
	_, snap := s.decisions.Snapshot()
	return snap, nil
}

// ApproveAll replaces the decision map with an approval for every product
// awaiting review.
func (s *ReviewService) ApproveAll(batchID string) (map[string]bool, error) {
	detail, err := s.openDetail(batchID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range detail.ReviewPending() {
		ids = append(ids, p.ProductID)
	}
	if err := s.decisions.ApproveAll(batchID, ids); err != nil {
		return nil, err
	}
	_, snap := s.decisions.Snapshot()
	return snap, nil
}

// SubmitApprovals sends every local decision plus an implicit rejection for
// each awaiting product left undecided, then starts the video stage for the
// approved products as a new batch reusing their generated images.
func (s *ReviewService) SubmitApprovals(ctx context.Context, batchID string) (*ReviewOutcome, error) {
	if !s.guard.acquire(reviewKey(batchID)) {
		return nil, ErrInFlight
	}
	defer s.guard.release(reviewKey(batchID))

	detail, err := s.openDetail(batchID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.credentialed(ctx)
	if err != nil {
		return nil, err
	}

	local, err := s.scopedDecisions(batchID, detail)
	if err != nil {
		return nil, err
	}

	wire := make(map[string]model.ReviewVerdict, len(detail.Products))
	for id, approved := range local {
		wire[id] = verdictOf(approved)
	}
	for _, p := range detail.Products {
		if model.ProductStatus(p.Status) != model.StatusImageReviewPending {
			continue
		}
		if _, decided := local[p.ProductID]; !decided {
			wire[p.ProductID] = model.VerdictRejected
		}
	}
	if len(wire) == 0 {
		return nil, ErrNothingToReview
	}

	resp, err := s.api.ReviewBatch(ctx, batchID, wire)
	if err != nil {
		return nil, fmt.Errorf("review submission failed: %w", err)
	}

	var inputs []model.ProductInput
	for _, p := range detail.Products {
		if approved, ok := local[p.ProductID]; !ok || !approved {
			continue
		}
		if p.GeneratedImageURL == "" {
			s.log.Warn().Str("batchId", batchID).Str("productId", p.ProductID).Msg("approved product has no generated image, skipping video stage")
			continue
		}
		inputs = append(inputs, model.ProductInput{
			ProductName:         p.ProductName,
			ImgURL:              p.GeneratedImageURL,
			Category:            p.Category,
			Price:               p.Price,
			SkipImageGeneration: true,
			ExistingImageURL:    p.GeneratedImageURL,
		})
	}

	outcome := &ReviewOutcome{BatchID: batchID, Decisions: wire, Updated: resp.Updated}
	if len(inputs) > 0 {
		started, err := s.api.StartPipeline(ctx, s.pipelineRequest(cfg, &detail.Summary, inputs, false))
		if err != nil {
			return nil, fmt.Errorf("failed to start video generation: %w", err)
		}
		outcome.NewBatchID = started.BatchID
		outcome.Resubmitted = len(inputs)
	}

	s.finish(ctx, batchID)
	s.log.Info().
		Str("batchId", batchID).
		Int("decisions", len(wire)).
		Int("resubmitted", outcome.Resubmitted).
		Str("newBatchId", outcome.NewBatchID).
		Msg("approvals submitted")
	return outcome, nil
}

// RegenerateRejected sends the explicit decisions only and starts a new
// image-only run for every product marked rejected. It does nothing when no
// product is marked rejected.
func (s *ReviewService) RegenerateRejected(ctx context.Context, batchID string) (*ReviewOutcome, error) {
	if !s.guard.acquire(reviewKey(batchID)) {
		return nil, ErrInFlight
	}
	defer s.guard.release(reviewKey(batchID))

	detail, err := s.openDetail(batchID)
	if err != nil {
		return nil, err
	}
	local, err := s.scopedDecisions(batchID, detail)
	if err != nil {
		return nil, err
	}

	wire := make(map[string]model.ReviewVerdict, len(local))
	rejected := 0
	for id, approved := range local {
		wire[id] = verdictOf(approved)
		if !approved {
			rejected++
		}
	}
	if rejected == 0 {
		return &ReviewOutcome{BatchID: batchID, NoOp: true}, nil
	}

	cfg, err := s.credentialed(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.ReviewBatch(ctx, batchID, wire)
	if err != nil {
		return nil, fmt.Errorf("review submission failed: %w", err)
	}

	var inputs []model.ProductInput
	for _, p := range detail.Products {
		if approved, ok := local[p.ProductID]; ok && !approved {
			inputs = append(inputs, model.ProductInput{
				ProductName: p.ProductName,
				ImgURL:      p.ImgURL,
				Category:    p.Category,
				Price:       p.Price,
			})
		}
	}

	outcome := &ReviewOutcome{BatchID: batchID, Decisions: wire, Updated: resp.Updated}
	if len(inputs) > 0 {
		started, err := s.api.StartPipeline(ctx, s.pipelineRequest(cfg, &detail.Summary, inputs, true))
		if err != nil {
			return nil, fmt.Errorf("failed to start image regeneration: %w", err)
		}
		outcome.NewBatchID = started.BatchID
		outcome.Resubmitted = len(inputs)
	}

	s.finish(ctx, batchID)
	s.log.Info().
		Str("batchId", batchID).
		Int("rejected", rejected).
		Str("newBatchId", outcome.NewBatchID).
		Msg("rejected images sent for regeneration")
	return outcome, nil
}

func (s *ReviewService) pipelineRequest(cfg model.Settings, summary *model.Batch, inputs []model.ProductInput, imageOnly bool) *model.PipelineRequest {
	imageModel := summary.ImageModel
	if imageModel == "" {
		imageModel = cfg.ImageModel
	}
	videoModel := summary.VideoModel
	if videoModel == "" {
		videoModel = cfg.VideoModel
	}
	return &model.PipelineRequest{
		Products:    inputs,
		FalAPIKey:   cfg.FalAPIKey,
		ImagePrompt: cfg.ImagePrompt,
		VideoPrompt: cfg.VideoPrompt,
		ImageModel:  imageModel,
		VideoModel:  videoModel,
		ImageOnly:   imageOnly,
	}
}

// finish clears local review state after a successful submission.
func (s *ReviewService) finish(ctx context.Context, batchID string) {
	s.decisions.ClearIf(batchID)
	s.poller.CloseIf(batchID)
	if _, err := s.poller.RefreshList(ctx); err != nil {
		s.log.Warn().Err(err).Msg("list refresh after review failed")
	}
}

func (s *ReviewService) openDetail(batchID string) (*model.BatchDetail, error) {
	snap, ok := s.poller.Detail()
	if !ok {
		return nil, ErrNoOpenBatch
	}
	if snap.BatchID != batchID {
		return nil, ErrBatchMismatch
	}
	if snap.Detail == nil {
		return nil, ErrNothingToReview
	}
	return snap.Detail, nil
}

// scopedDecisions returns the decisions for products that are still waiting
// for review in detail. Decisions for products that moved on since they were
// made are dropped.
func (s *ReviewService) scopedDecisions(batchID string, detail *model.BatchDetail) (map[string]bool, error) {
	scope, local := s.decisions.Snapshot()
	if scope != batchID {
		return nil, ErrBatchMismatch
	}
	out := make(map[string]bool, len(local))
	for _, p := range detail.Products {
		approved, ok := local[p.ProductID]
		if !ok {
			continue
		}
		if model.ProductStatus(p.Status) != model.StatusImageReviewPending {
			s.log.Debug().Str("batchId", batchID).Str("productId", p.ProductID).Str("status", p.Status).Msg("ignoring decision for product no longer awaiting review")
			continue
		}
		out[p.ProductID] = approved
	}
	return out, nil
}

func (s *ReviewService) credentialed(ctx context.Context) (model.Settings, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	if !cfg.HasCredential() {
		return model.Settings{}, ErrMissingCredential
	}
	return cfg, nil
}
