// Package response writes the console's JSON bodies and its error envelope
// {"error":{"code","message","details"}}.
package response

import (
	"mime"

	"github.com/gofiber/fiber/v2"
)

// Code is the machine readable part of an error body.
type Code string

const (
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUpstreamError   Code = "UPSTREAM_ERROR"
	CodeServiceError    Code = "SERVICE_ERROR"
)

var statusOf = map[Code]int{
	CodeValidationError: fiber.StatusBadRequest,
	CodeNotFound:        fiber.StatusNotFound,
	CodeConflict:        fiber.StatusConflict,
	CodeRateLimited:     fiber.StatusTooManyRequests,
	CodeUpstreamError:   fiber.StatusBadGateway,
	CodeServiceError:    fiber.StatusInternalServerError,
}

// Status is the HTTP status sent with code.
func (c Code) Status() int {
	if s, ok := statusOf[c]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Fail writes the error envelope with the status belonging to code.
func Fail(c *fiber.Ctx, code Code, message string, details interface{}) error {
	return c.Status(code.Status()).JSON(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Fail(c, CodeValidationError, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Fail(c, CodeNotFound, message, nil)
}

// Conflict covers duplicate in-flight actions and state races.
func Conflict(c *fiber.Ctx, message string) error {
	return Fail(c, CodeConflict, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Fail(c, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Fail(c, CodeServiceError, message, nil)
}

// UpstreamError reports a failure of the pipeline backend or a media host.
func UpstreamError(c *fiber.Ctx, message string, details interface{}) error {
	return Fail(c, CodeUpstreamError, message, details)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Attachment sends data as a download named filename.
func Attachment(c *fiber.Ctx, contentType, filename string, data []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return c.Status(fiber.StatusOK).Send(data)
}
