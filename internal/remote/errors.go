// Package remote provides an HTTP client for the authoritative catalog
// backend with automatic retry, circuit breaking, and error classification.
// Every failure leaving this package is a *catalog.NetworkError.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, remote.ErrNotFound) to check.
var (
	ErrBadRequest    = errors.New("remote: bad request")
	ErrUnauthorized  = errors.New("remote: unauthorized")
	ErrForbidden     = errors.New("remote: forbidden")
	ErrNotFound      = errors.New("remote: not found")
	ErrConflict      = errors.New("remote: conflict")
	ErrUnprocessable = errors.New("remote: unprocessable entity")
	ErrThrottled     = errors.New("remote: throttled")
	ErrServerError   = errors.New("remote: server error")
	ErrCircuitOpen   = errors.New("remote: circuit open")
	ErrBadResponse   = errors.New("remote: malformed response")
)

// APIError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("remote: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isRejection reports whether err is a definitive 4xx refusal. Rejections
// say nothing about backend health and do not trip the breaker.
func isRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && !isRetryable(apiErr.StatusCode)
}

// toNetworkError translates a client failure into the catalog taxonomy.
// When the caller's context is done the context error passes through
// unchanged so callers can tell an abort from a remote failure. 404, 409,
// and 422 additionally carry the matching catalog sentinel so the
// repository can surface NotFound, AlreadyExists, or Validation.
func toNetworkError(ctx context.Context, op string, t catalog.EntityType, key string, err error) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("remote: %s: %w", op, ctxErr)
	}

	netErr := &catalog.NetworkError{Op: op, Err: err}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		netErr.StatusCode = apiErr.StatusCode

		switch {
		case errors.Is(apiErr, ErrNotFound):
			netErr.Err = fmt.Errorf("%w: %w", catalog.NewNotFound(t, key), err)
		case errors.Is(apiErr, ErrConflict):
			netErr.Err = fmt.Errorf("%w: %w", catalog.NewAlreadyExists(t, key), err)
		case errors.Is(apiErr, ErrUnprocessable), errors.Is(apiErr, ErrBadRequest):
			netErr.Err = fmt.Errorf("%w: %w", &catalog.ValidationError{Field: string(t), Rule: "remote", Value: apiErr.Message}, err)
		}
	}

	return netErr
}
