package handler

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

// Headers set on a streamed archive.
const (
	HeaderFileCount = "X-File-Count"
	HeaderWarnings  = "X-Download-Warnings"
)

type GalleryHandler struct {
	gallery   *service.GalleryService
	downloads *service.DownloadService
	validator *validator.Validate
}

func NewGalleryHandler(gallery *service.GalleryService, downloads *service.DownloadService, v *validator.Validate) *GalleryHandler {
	return &GalleryHandler{gallery: gallery, downloads: downloads, validator: v}
}

// List handles GET /api/gallery
// @Summary      Finished videos
// @Description  Lists completed products with a stored video across all batches. The catalog is loaded on first use or when refresh is set.
// @Tags         Gallery
// @Produce      json
// @Param        refresh query bool false "Reload from the backend"
// @Success      200 {object} service.GallerySnapshot
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/gallery [get]
func (h *GalleryHandler) List(c *fiber.Ctx) error {
	snap := h.gallery.Snapshot()
	if c.QueryBool("refresh") || snap.LoadedAt.IsZero() {
		loaded, err := h.gallery.Load(c.UserContext())
		if err != nil {
			return serviceError(c, err)
		}
		snap = loaded
	}
	return response.OK(c, snap)
}

// Download handles POST /api/gallery/download
// @Summary      Download selected videos
// @Description  One URL redirects to the signed link. Several are fetched and streamed back as a zip. Unresolved keys and failed fetches are skipped and listed in X-Download-Warnings.
// @Tags         Gallery
// @Accept       json
// @Produce      application/zip
// @Param        request body model.DownloadRequest true "Selected videos"
// @Success      200 {file} binary
// @Success      303
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/gallery/download [post]
func (h *GalleryHandler) Download(c *fiber.Ctx) error {
	var req model.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.downloads.Retrieve(c.UserContext(), req.Keys)
	if err != nil {
		return serviceError(c, err)
	}

	if result.RedirectURL != "" {
		setWarnings(c, result.Warnings)
		return c.Redirect(result.RedirectURL, fiber.StatusSeeOther)
	}
	return sendArchive(c, result.ArchiveName, result.Archive, result.FileCount, result.Warnings)
}

func sendArchive(c *fiber.Ctx, name string, data []byte, files int, warnings []string) error {
	c.Set(HeaderFileCount, strconv.Itoa(files))
	setWarnings(c, warnings)
	return response.Attachment(c, "application/zip", name, data)
}

func setWarnings(c *fiber.Ctx, warnings []string) {
	if len(warnings) > 0 {
		// Header values cannot carry newlines.
		c.Set(HeaderWarnings, strings.Join(warnings, "; "))
	}
}
