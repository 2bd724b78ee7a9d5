package registry

import (
	"errors"
	"fmt"
)

// Kind classifies a registry failure. The string form is the public error code.
type Kind string

// Error kinds.
const (
	KindBadRequest          Kind = "BadRequest"
	KindNotFound            Kind = "NotFound"
	KindInternalServerError Kind = "InternalServerError"
	KindUnauthorized        Kind = "Unauthorized"
)

// Error is the typed failure returned by every registry operation.
// PublicMessage is safe to expose to callers; Err is the internal cause.
type Error struct {
	Kind          Kind
	PublicMessage string
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.PublicMessage, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.PublicMessage)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest reports invalid caller input.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, PublicMessage: message}
}

// BadRequestWrap reports invalid caller input with the underlying cause.
func BadRequestWrap(message string, cause error) *Error {
	return &Error{Kind: KindBadRequest, PublicMessage: message, Err: cause}
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, PublicMessage: message}
}

// Internal reports a storage or configuration failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternalServerError, PublicMessage: message, Err: cause}
}

// Unauthorized reports a missing credential.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, PublicMessage: message}
}

// KindOf returns the kind of err, or KindInternalServerError for errors that
// are not registry errors.
func KindOf(err error) Kind {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return KindInternalServerError
}

// PublicMessage returns the caller-safe message of err.
func PublicMessage(err error) string {
	var regErr *Error
	if errors.As(err, &regErr) && regErr.PublicMessage != "" {
		return regErr.PublicMessage
	}
	return "An unexpected error occurred."
}
