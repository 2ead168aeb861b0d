package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/CZERTAINLY/mdsetup/internal/model"
)

// Error codes
const (
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeUnknownPlatform    = "UNKNOWN_PLATFORM"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeServiceError       = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondError(c *fiber.Ctx, status int, code, message string, details any) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func validationError(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusBadRequest, CodeValidationError, message, nil)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func notFound(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func serviceError(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

type violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// compileFailed renders the errors of script.Compile and Supervisor.Start.
// Invalid snapshots are the caller's fault, anything else is ours.
func compileFailed(c *fiber.Ctx, err error) error {
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		details := make([]violation, len(cfgErr.Violations))
		for i, v := range cfgErr.Violations {
			details[i] = violation{Field: v.Field, Code: v.Code, Message: v.Message}
		}
		return respondError(c, fiber.StatusBadRequest, CodeConfigurationError, cfgErr.Error(), details)
	}
	var platformErr *model.UnknownPlatformError
	if errors.As(err, &platformErr) {
		return respondError(c, fiber.StatusBadRequest, CodeUnknownPlatform, platformErr.Error(), map[string]string{
			"platform": platformErr.Platform,
		})
	}
	return serviceError(c, err.Error())
}

// ErrorHandler renders errors returned by handlers and fiber itself in the
// common envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := CodeServiceError
		switch fe.Code {
		case fiber.StatusNotFound:
			code = CodeNotFound
		case fiber.StatusUnauthorized:
			code = CodeUnauthorized
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUpgradeRequired:
			code = CodeValidationError
		}
		return respondError(c, fe.Code, code, fe.Message, nil)
	}
	return serviceError(c, err.Error())
}
