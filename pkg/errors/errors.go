// Package errors defines the service error taxonomy: sentinel errors for
// each failure class, an AppError wrapper carrying the violated constraint,
// and the mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrShape marks a malformed matrix: inconsistent embedding dimension,
	// empty query, or a parallel sequence of the wrong length.
	ErrShape = errors.New("shape error")
	// ErrConfig marks bad pruning parameters: unknown method, non-positive
	// budgets, or missing salience weights.
	ErrConfig = errors.New("config error")
	// ErrCompute marks a non-finite score produced during MaxSim scoring.
	ErrCompute = errors.New("compute fault")
	// ErrInvalidInput marks a request rejected by serving-layer limits.
	ErrInvalidInput = errors.New("invalid input")
	ErrTimeout      = errors.New("operation timed out")
	ErrInternal     = errors.New("internal error")
)

// AppError pairs a sentinel with a message naming exactly which constraint
// failed, so a rejected request can be reproduced without rerunning the
// pipeline.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode resolves the HTTP status for an error, preferring the code
// on an AppError and falling back to the sentinel class.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrShape), errors.Is(err, ErrConfig), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
