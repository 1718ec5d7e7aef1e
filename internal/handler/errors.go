package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/service"
	"github.com/bofstudio/pipeline-console/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Namespace()] = e.Tag()
		}
		return errs
	}
	return nil
}

// serviceError maps a service failure onto the console error envelope.
func serviceError(c *fiber.Ctx, err error) error {
	var (
		apiErr *client.APIError
		verrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verrs):
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))

	case errors.Is(err, service.ErrMissingCredential),
		errors.Is(err, service.ErrEmptySelection),
		errors.Is(err, service.ErrNotReviewable),
		errors.Is(err, service.ErrNothingToReview):
		return response.ValidationError(c, err.Error(), nil)

	case errors.Is(err, service.ErrNoOpenBatch),
		errors.Is(err, service.ErrNothingResolved),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, client.ErrArchiveNotFound):
		return response.NotFound(c, err.Error())

	case errors.Is(err, service.ErrInFlight),
		errors.Is(err, service.ErrBatchMismatch),
		errors.Is(err, service.ErrStaleResponse),
		errors.Is(err, service.ErrJobFinished),
		errors.Is(err, service.ErrJobNotFinished):
		return response.Conflict(c, err.Error())

	case errors.As(err, &apiErr):
		if apiErr.StatusCode == fiber.StatusNotFound {
			return response.NotFound(c, apiErr.Message)
		}
		return response.UpstreamError(c, err.Error(), fiber.Map{"status": apiErr.StatusCode})

	case errors.Is(err, service.ErrNothingFetched),
		errors.Is(err, context.DeadlineExceeded):
		return response.UpstreamError(c, err.Error(), nil)
	}
	return response.ServiceError(c, err.Error())
}
