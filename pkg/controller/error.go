// Package controller maps registry results and errors to HTTP responses.
package controller

import (
	"context"
	"net/http"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/registry"
)

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Code          string `json:"code"`
	PublicMessage string `json:"publicMessage"`
	RequestID     string `json:"requestId,omitempty"`
}

// MapError maps registry errors to HTTP responses. Errors that are not
// registry errors are reported as internal errors without their message.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	kind := registry.KindOf(err)
	return StatusOf(kind), ErrorResponse{
		Code:          string(kind),
		PublicMessage: registry.PublicMessage(err),
		RequestID:     logger.RequestIDFromContext(ctx),
	}
}

// StatusOf returns the HTTP status for an error kind.
func StatusOf(kind registry.Kind) int {
	switch kind {
	case registry.KindBadRequest:
		return http.StatusBadRequest
	case registry.KindNotFound:
		return http.StatusNotFound
	case registry.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
