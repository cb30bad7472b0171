// Package admin provides an HTTP client for the Google Analytics Admin API
// with automatic retry, request pacing, and error classification. The client
// reads GA4 property state for the reconciliation engine and supplies the
// operation tables that mutate it.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, admin.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("admin: bad request")
	ErrUnauthorized = errors.New("admin: unauthorized")
	ErrForbidden    = errors.New("admin: forbidden")
	ErrNotFound     = errors.New("admin: not found")
	ErrConflict     = errors.New("admin: conflict")
	ErrThrottled    = errors.New("admin: throttled")
	ErrServerError  = errors.New("admin: server error")
	ErrTimeout      = errors.New("admin: deadline exceeded")
)

// Google RPC status names that mark a failure worth retrying.
const (
	statusDeadlineExceeded  = "DEADLINE_EXCEEDED"
	statusUnavailable       = "UNAVAILABLE"
	statusResourceExhausted = "RESOURCE_EXHAUSTED"
	statusAborted           = "ABORTED"
)

// APIError wraps a sentinel error with the HTTP status code, the Google RPC
// status name and the API error message.
type APIError struct {
	StatusCode int
	// Status is the RPC status name from the error body, e.g.
	// "INVALID_ARGUMENT" or "DEADLINE_EXCEEDED". Empty when the body was
	// not a Google error document.
	Status  string
	Message string
	Err     error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("admin: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("admin: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same request may succeed. The
// reconciliation executor consults it through an interface check.
func (e *APIError) Transient() bool {
	switch e.Status {
	case statusDeadlineExceeded, statusUnavailable, statusResourceExhausted, statusAborted:
		return true
	}

	return isRetryable(e.StatusCode)
}

// NotFound reports whether the addressed resource does not exist. The
// executor relies on it to settle a replace whose dispose already landed.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Status == "NOT_FOUND"
}

// googleErrorBody mirrors the error document returned by Google APIs.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// newAPIError builds an APIError from a non-2xx response body.
func newAPIError(code int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: code,
		Message:    string(body),
		Err:        classifyStatus(code),
	}

	var parsed googleErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Status = parsed.Error.Status
	}

	if apiErr.Status == statusDeadlineExceeded {
		apiErr.Err = ErrTimeout
	}

	return apiErr
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
	case http.StatusGatewayTimeout:
		return ErrTimeout
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
