package handlers

import (
	"errors"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/gofiber/fiber/v3"
)

// ErrLocalSourceForbidden is returned when a request names a local path and local sources are disabled
var ErrLocalSourceForbidden = fiber.NewError(fiber.StatusForbidden, "local file sources are disabled")

// ErrInvalidPreview is returned for a non-numeric preview parameter
var ErrInvalidPreview = fiber.NewError(fiber.StatusBadRequest, "preview must be a non-negative integer")

// toFiberError maps the acquisition error taxonomy onto HTTP status codes. The message keeps
// the failed stage and whether a fallback was attempted.
func toFiberError(err error) *fiber.Error {
	code := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, acquire.ErrInvalidDateRange), errors.Is(err, acquire.ErrUnknownShortcut):
		code = fiber.StatusBadRequest
	case errors.Is(err, acquire.ErrFileNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, acquire.ErrNoDataAvailable):
		code = fiber.StatusServiceUnavailable
	case errors.Is(err, acquire.ErrNetwork):
		code = fiber.StatusBadGateway
	}

	return fiber.NewError(code, err.Error())
}
