package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/settings"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

type SettingsHandler struct {
	store     settings.Store
	validator *validator.Validate
}

func NewSettingsHandler(store settings.Store, v *validator.Validate) *SettingsHandler {
	return &SettingsHandler{store: store, validator: v}
}

// Get handles GET /api/settings
// @Summary      Current settings
// @Description  The credential is never returned in full
// @Tags         Settings
// @Produce      json
// @Success      200 {object} SettingsView
// @Router       /api/settings [get]
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	s, err := h.store.Get(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, settingsView(s))
}

// Update handles PUT /api/settings
// @Summary      Update settings
// @Description  Omitted fields keep their current value
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        request body model.SettingsUpdate true "Fields to change"
// @Success      200 {object} SettingsView
// @Failure      400 {object} response.ErrorResponse
// @Router       /api/settings [put]
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req model.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	s, err := h.store.Update(c.UserContext(), req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, settingsView(s))
}

// Reset handles DELETE /api/settings
// @Summary      Restore default settings
// @Tags         Settings
// @Produce      json
// @Success      200 {object} SettingsView
// @Router       /api/settings [delete]
func (h *SettingsHandler) Reset(c *fiber.Ctx) error {
	s, err := h.store.Reset(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, settingsView(s))
}
