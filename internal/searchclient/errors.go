// Package searchclient is an HTTP client for the remote semantic-search
// store's document API, with automatic retry, backoff, and error
// classification (SPEC_FULL.md C2).
package searchclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, searchclient.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("searchclient: bad request")
	ErrUnauthorized = errors.New("searchclient: unauthorized")
	ErrForbidden    = errors.New("searchclient: forbidden")
	ErrNotFound     = errors.New("searchclient: not found")
	ErrConflict     = errors.New("searchclient: conflict")
	ErrThrottled    = errors.New("searchclient: throttled")
	ErrServerError  = errors.New("searchclient: server error")
)

// RemoteError wraps a sentinel error with HTTP status code, request ID, and
// the API error message body for debugging.
type RemoteError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RemoteError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("searchclient: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("searchclient: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
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
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
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
// Callers should also check Retry-After headers for 429 responses before
// computing backoff.
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
