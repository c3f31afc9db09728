// Package errors defines the sentinel error kinds of the query orchestration
// core and an AppError wrapper that carries an HTTP status for the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidQuery marks an empty or whitespace-only prompt, rejected
	// before any cache or provider work.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrProviderUnavailable marks a provider that is not registered or not
	// configured; it is skipped during ordering, not attempted.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderFailure marks a failed provider attempt; it triggers
	// fallback to the next provider when fallback is allowed.
	ErrProviderFailure = errors.New("provider failure")
	// ErrAllProvidersFailed is terminal for one ask: every provider in the
	// fallback chain failed. It is returned as a payload field, never thrown.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrRetrievalDegraded marks an index or search error; context assembly
	// continues with an empty context instead of aborting.
	ErrRetrievalDegraded = errors.New("retrieval degraded")
	// ErrCacheUnavailable marks a cache backend error, treated as a miss.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrInvalidInput marks a malformed ingestion or API request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal marks an unexpected internal failure.
	ErrInternal = errors.New("internal error")
)

// AppError pairs a sentinel error with a human-readable message and the HTTP
// status the API layer should respond with.
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

// New creates an AppError wrapping the given sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the API should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrAllProvidersFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCacheUnavailable), errors.Is(err, ErrRetrievalDegraded):
		// Degraded paths still produce a well-formed payload.
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
