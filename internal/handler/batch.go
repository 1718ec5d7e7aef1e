package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/internal/settings"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

type BatchHandler struct {
	poller    *service.Poller
	batches   *service.BatchService
	pricing   *service.PricingTable
	settings  settings.Store
	validator *validator.Validate
}

func NewBatchHandler(poller *service.Poller, batches *service.BatchService, pricing *service.PricingTable, store settings.Store, v *validator.Validate) *BatchHandler {
	return &BatchHandler{
		poller:    poller,
		batches:   batches,
		pricing:   pricing,
		settings:  store,
		validator: v,
	}
}

// List handles GET /api/batches
// @Summary      List batches
// @Description  Returns the last polled batch list. A failed poll keeps the previous list and sets lastError.
// @Tags         Batches
// @Produce      json
// @Success      200 {object} BatchListView
// @Router       /api/batches [get]
func (h *BatchHandler) List(c *fiber.Ctx) error {
	cfg, err := h.settings.Get(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	snap := h.poller.List()
	view := BatchListView{
		Batches:   make([]BatchRow, 0, len(snap.Batches)),
		FetchedAt: snap.FetchedAt,
		LastError: snap.LastError,
		Open:      h.poller.SelectedBatch(),
	}
	for _, b := range snap.Batches {
		cost := h.pricing.BatchEstimate(b, cfg.ImageModel, cfg.VideoModel)
		view.Batches = append(view.Batches, BatchRow{
			Batch:         b,
			Display:       model.StatusInfo(b.Status),
			EstimatedCost: cost,
		})
		view.TotalCost += cost
	}
	return response.OK(c, view)
}

// Refresh handles POST /api/batches/refresh
// @Summary      Refresh now
// @Description  Refreshes the open batch if there is one, otherwise the batch list
// @Tags         Batches
// @Produce      json
// @Success      200 {object} RefreshView
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/batches/refresh [post]
func (h *BatchHandler) Refresh(c *fiber.Ctx) error {
	which, err := h.poller.Refresh(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, RefreshView{Refreshed: which})
}

// Cancel handles POST /api/batches/:batchId/cancel
// @Summary      Cancel batch
// @Tags         Batches
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.CancelResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/batches/{batchId}/cancel [post]
func (h *BatchHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.batches.Cancel(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// Delete handles DELETE /api/batches/:batchId
// @Summary      Delete batch
// @Tags         Batches
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.MessageResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/batches/{batchId} [delete]
func (h *BatchHandler) Delete(c *fiber.Ctx) error {
	result, err := h.batches.Delete(c.UserContext(), c.Params("batchId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// VideoDownload handles GET /api/videos/:batchId/:productId/download
// @Summary      Download one video
// @Description  Redirects to the signed URL of a finished video
// @Tags         Gallery
// @Param        batchId path string true "Batch ID"
// @Param        productId path string true "Product ID"
// @Success      302
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/videos/{batchId}/{productId}/download [get]
func (h *BatchHandler) VideoDownload(c *fiber.Ctx) error {
	u, err := h.batches.VideoURL(c.UserContext(), c.Params("batchId"), c.Params("productId"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.Redirect(u, fiber.StatusFound)
}

// StartPipeline handles POST /api/pipeline
// @Summary      Start pipeline
// @Description  Submits products using the current settings. Review mode stops products after the image stage.
// @Tags         Pipeline
// @Accept       json
// @Produce      json
// @Param        request body service.StartPipelineInput true "Products to process"
// @Success      201 {object} service.StartPipelineResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/pipeline [post]
func (h *BatchHandler) StartPipeline(c *fiber.Ctx) error {
	var req service.StartPipelineInput
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.batches.StartPipeline(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, result)
}

// Pricing handles GET /api/pricing
// @Summary      Price list and estimate
// @Tags         Pipeline
// @Produce      json
// @Param        count query int false "Number of products"
// @Param        imageModel query string false "Image model, defaults to the settings"
// @Param        videoModel query string false "Video model, defaults to the settings"
// @Param        imageOnly query bool false "Image-only run, defaults to review mode"
// @Success      200 {object} PricingView
// @Router       /api/pricing [get]
func (h *BatchHandler) Pricing(c *fiber.Ctx) error {
	cfg, err := h.settings.Get(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	count := c.QueryInt("count", 1)
	if count < 0 {
		return response.ValidationError(c, "count must not be negative", nil)
	}
	imageModel := c.Query("imageModel", cfg.ImageModel)
	videoModel := c.Query("videoModel", cfg.VideoModel)
	imageOnly := cfg.ImageReviewMode
	if raw := c.Query("imageOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return response.ValidationError(c, "imageOnly must be a boolean", nil)
		}
		imageOnly = v
	}

	return response.OK(c, PricingView{
		ImageModels: h.pricing.Models(service.UnitImage),
		VideoModels: h.pricing.Models(service.UnitVideo),
		ImageModel:  imageModel,
		VideoModel:  videoModel,
		ImageOnly:   imageOnly,
		PerProduct:  h.pricing.PerProduct(imageModel, videoModel, imageOnly),
		Count:       count,
		Estimate:    h.pricing.Estimate(count, imageModel, videoModel, imageOnly),
	})
}
