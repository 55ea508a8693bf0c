package api

import (
	"errors"
	"net/http"

	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownEngine),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrProviderRequest):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message based
// on the error type. Validation failures surface their reason; everything
// else gets a generic message.
func GetSafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownEngine):
		return err.Error()
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"
	case errors.Is(err, domain.ErrProviderRequest):
		return "Generation backend is unavailable, try again later"
	default:
		return "Internal server error"
	}
}
