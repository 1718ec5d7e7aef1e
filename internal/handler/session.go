package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/internal/settings"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

// SessionHandler serves the open batch view and its review workflow.
type SessionHandler struct {
	poller    *service.Poller
	review    *service.ReviewService
	decisions *service.DecisionStore
	pricing   *service.PricingTable
	settings  settings.Store
	validator *validator.Validate
}

func NewSessionHandler(poller *service.Poller, review *service.ReviewService, decisions *service.DecisionStore, pricing *service.PricingTable, store settings.Store, v *validator.Validate) *SessionHandler {
	return &SessionHandler{
		poller:    poller,
		review:    review,
		decisions: decisions,
		pricing:   pricing,
		settings:  store,
		validator: v,
	}
}

// Open handles POST /api/batches/:batchId/open
// @Summary      Open batch
// @Description  Makes the batch the open detail view and starts polling it. Switching batches drops all local decisions.
// @Tags         Session
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} SessionView
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/batches/{batchId}/open [post]
func (h *SessionHandler) Open(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	if _, err := h.poller.OpenBatch(c.UserContext(), batchID); err != nil && !errors.Is(err, service.ErrStaleResponse) {
		// The view stays open and the poll loop keeps retrying.
		return serviceError(c, err)
	}
	return h.Get(c)
}

// Get handles GET /api/session
// @Summary      Open batch view
// @Tags         Session
// @Produce      json
// @Success      200 {object} SessionView
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/session [get]
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	snap, ok := h.poller.Detail()
	if !ok {
		return serviceError(c, service.ErrNoOpenBatch)
	}
	cfg, err := h.settings.Get(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, h.view(snap, cfg))
}

// Close handles DELETE /api/session
// @Summary      Close batch view
// @Tags         Session
// @Success      204
// @Router       /api/session [delete]
func (h *SessionHandler) Close(c *fiber.Ctx) error {
	h.poller.CloseBatch()
	return response.NoContent(c)
}

// Toggle handles POST /api/session/decisions
// @Summary      Toggle a review decision
// @Description  Choosing the current verdict again clears it back to undecided
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request body DecisionRequest true "Decision"
// @Success      200 {object} DecisionsView
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/session/decisions [post]
func (h *SessionHandler) Toggle(c *fiber.Ctx) error {
	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	snap, err := h.review.ToggleDecision(req.BatchID, req.ProductID, *req.Approved)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, DecisionsView{BatchID: req.BatchID, Decisions: service.Entries(snap)})
}

// ApproveAll handles POST /api/session/approve-all
// @Summary      Approve every awaiting product
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request body BatchActionRequest true "Open batch"
// @Success      200 {object} DecisionsView
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/session/approve-all [post]
func (h *SessionHandler) ApproveAll(c *fiber.Ctx) error {
	req, err := h.parseAction(c)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	snap, err := h.review.ApproveAll(req.BatchID)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, DecisionsView{BatchID: req.BatchID, Decisions: service.Entries(snap)})
}

// Submit handles POST /api/session/submit
// @Summary      Submit approvals
// @Description  Sends all decisions, rejecting every awaiting product left undecided, and starts video generation for approved products
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request body BatchActionRequest true "Open batch"
// @Success      200 {object} service.ReviewOutcome
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/session/submit [post]
func (h *SessionHandler) Submit(c *fiber.Ctx) error {
	req, err := h.parseAction(c)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	outcome, err := h.review.SubmitApprovals(c.UserContext(), req.BatchID)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, outcome)
}

// Regenerate handles POST /api/session/regenerate
// @Summary      Regenerate rejected images
// @Description  Sends the explicit decisions and starts a new image-only run for rejected products. Does nothing when none are rejected.
// @Tags         Session
// @Accept       json
// @Produce      json
// @Param        request body BatchActionRequest true "Open batch"
// @Success      200 {object} service.ReviewOutcome
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/session/regenerate [post]
func (h *SessionHandler) Regenerate(c *fiber.Ctx) error {
	req, err := h.parseAction(c)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	outcome, err := h.review.RegenerateRejected(c.UserContext(), req.BatchID)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, outcome)
}

// parseAction returns nil, nil once it has written a validation response.
func (h *SessionHandler) parseAction(c *fiber.Ctx) (*BatchActionRequest, error) {
	var req BatchActionRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return nil, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return &req, nil
}

func (h *SessionHandler) view(snap service.DetailSnapshot, cfg model.Settings) SessionView {
	scope, decisions := h.decisions.Snapshot()
	if scope != snap.BatchID {
		decisions = map[string]bool{}
	}

	v := SessionView{
		BatchID:    snap.BatchID,
		Products:   []ProductRow{},
		Decisions:  service.Entries(decisions),
		Submitting: h.review.Submitting(snap.BatchID),
		FetchedAt:  snap.FetchedAt,
		LastError:  snap.LastError,
	}
	if snap.Detail == nil {
		return v
	}

	d := snap.Detail
	summary := d.Summary
	v.Summary = &summary
	v.Display = model.StatusInfo(summary.Status)

	total := summary.TotalProducts
	if total == 0 {
		total = len(d.Products)
	}
	v.Progress = service.Aggregate(d.StatusCounts, total)
	v.Percentages = v.Progress.Percentages()
	v.AllDone = service.AllDone(d)
	v.EstimatedCost = h.pricing.BatchEstimate(summary, cfg.ImageModel, cfg.VideoModel)

	for _, p := range d.Products {
		row := ProductRow{
			Product:    p,
			Display:    model.StatusInfo(p.Status),
			Reviewable: p.Reviewable(),
		}
		if approved, ok := decisions[p.ProductID]; ok {
			if approved {
				row.Decision = model.VerdictApproved
			} else {
				row.Decision = model.VerdictRejected
			}
		}
		if row.Reviewable {
			v.ReviewPending++
		}
		v.Products = append(v.Products, row)
	}
	return v
}
