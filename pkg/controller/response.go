package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nimburion/adapter-registry/pkg/registry"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 8 << 20

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

// Success sends v with HTTP 200 OK.
func Success(w http.ResponseWriter, v any) error {
	return JSON(w, http.StatusOK, v)
}

// NoContent sends HTTP 204 No Content without a body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error sends the mapped error response for err.
func Error(w http.ResponseWriter, r *http.Request, err error) error {
	status, body := MapError(r.Context(), err)
	return JSON(w, status, body)
}

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes the request body into dst. A missing or empty body
// returns ErrEmptyBody; malformed JSON returns a BadRequest.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return registry.BadRequestWrap("Bad Request. Request body could not be read.", err)
	}
	if len(body) > MaxBodyBytes {
		return registry.BadRequest("Bad Request. Request body is too large.")
	}
	if len(body) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return registry.BadRequestWrap("Bad Request. Request body is not valid JSON.", fmt.Errorf("decode body: %w", err))
	}
	return nil
}

// ReadBody returns the raw request body, capped at MaxBodyBytes.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, registry.BadRequestWrap("Bad Request. Request body could not be read.", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, registry.BadRequest("Bad Request. Request body is too large.")
	}
	return body, nil
}
