// Package store holds the contracts shared by the object store and index adapters.
package store

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by conditional writes whose precondition no
// longer holds because the stored entry changed.
var ErrVersionConflict = errors.New("index entry changed concurrently")

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Result is the outcome of a store-facing operation. Adapters never return a
// bare error: failures travel in Err, and callers check Err before Data.
type Result[T any] struct {
	Data T
	Err  error
}

// OK wraps a successful payload.
func OK[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Fail wraps an error with the zero payload.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Partial wraps an error together with the payload gathered before it occurred.
func Partial[T any](data T, err error) Result[T] {
	return Result[T]{Data: data, Err: err}
}
