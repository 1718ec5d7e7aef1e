package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

// ArchiveGetter serves archives kept by the server itself.
type ArchiveGetter interface {
	GetArchive(ctx context.Context, key string) ([]byte, error)
}

type ExportHandler struct {
	service   *service.ExportService
	archives  ArchiveGetter
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, archives ArchiveGetter, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		service:   svc,
		archives:  archives,
		validator: v,
	}
}

// Start handles POST /api/exports
// @Summary      Queue an archive export
// @Description  Builds the archive in the background. Progress is pushed on /ws/jobs/{jobId}.
// @Tags         Export
// @Accept       json
// @Produce      json
// @Param        request body model.DownloadRequest true "Selected videos"
// @Success      202 {object} model.ExportStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/exports [post]
func (h *ExportHandler) Start(c *fiber.Ctx) error {
	var req model.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartExport(c.UserContext(), req.Keys)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/exports/:jobId
// @Summary      Export status
// @Tags         Export
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ExportStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/exports/{jobId} [get]
func (h *ExportHandler) Status(c *fiber.Ctx) error {
	status, err := h.service.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, status)
}

// Cancel handles DELETE /api/exports/:jobId
// @Summary      Cancel export
// @Tags         Export
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ExportStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/exports/{jobId} [delete]
func (h *ExportHandler) Cancel(c *fiber.Ctx) error {
	status, err := h.service.CancelExport(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, status)
}

// Archive handles GET /api/exports/:jobId/archive
// @Summary      Fetch a finished export
// @Description  Only used when archives are kept in Redis instead of object storage
// @Tags         Export
// @Produce      application/zip
// @Param        jobId path string true "Job ID"
// @Success      200 {file} binary
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/exports/{jobId}/archive [get]
func (h *ExportHandler) Archive(c *fiber.Ctx) error {
	if h.archives == nil {
		return response.NotFound(c, "Archives are served from object storage")
	}

	jobID := c.Params("jobId")
	status, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}
	if status.Status != model.JobStatusSucceeded || status.Result == nil {
		return serviceError(c, service.ErrJobNotFinished)
	}
	if status.Result.RedirectURL != "" {
		return c.Redirect(status.Result.RedirectURL, fiber.StatusSeeOther)
	}

	data, err := h.archives.GetArchive(c.UserContext(), service.ExportArchiveKey(jobID))
	if err != nil {
		return serviceError(c, err)
	}
	return sendArchive(c, status.Result.ArchiveName, data, status.Result.FileCount, status.Result.Warnings)
}
