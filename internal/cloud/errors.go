// Package cloud is the edge node's HTTP client for the central cloud API:
// reachability probe, reference-data downloads and batched uploads.
package cloud

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, cloud.ErrNotFound) to check.
var (
	ErrBadRequest       = errors.New("cloud: bad request")
	ErrUnauthorized     = errors.New("cloud: unauthorized")
	ErrForbidden        = errors.New("cloud: forbidden")
	ErrNotFound         = errors.New("cloud: not found")
	ErrConflict         = errors.New("cloud: conflict")
	ErrThrottled        = errors.New("cloud: throttled")
	ErrServerError      = errors.New("cloud: server error")
	ErrUnexpectedStatus = errors.New("cloud: unexpected status")
)

// ErrNotConfigured means no API base URL is set. Sync operations fail
// immediately with it; local operations are unaffected.
var ErrNotConfigured = errors.New("cloud: API base not configured")

// APIError wraps a sentinel with the HTTP status and the response body.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
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

		return ErrUnexpectedStatus
	}
}
