package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for structured error handling.
const (
	ErrCodeSync               = "SYNC_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeConflictResolution = "CONFLICT_RESOLUTION_ERROR"
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodeStorage            = "STORAGE_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimit          = "RATE_LIMIT"
	ErrCodeServerError        = "SERVER_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrWordNotFound     = errors.New("word not found")
	ErrInvalidWord      = errors.New("invalid word")
	ErrNoServerData     = errors.New("server has no data")

	// ErrInvalidResponse marks a 2xx response whose body could not be used.
	// It is never retried.
	ErrInvalidResponse = errors.New("invalid server response")
)

// APIError represents an error from the API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status >= 500:
		return ErrCodeServerError
	case status >= 400:
		return ErrCodeBadRequest
	default:
		return ErrCodeSync
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether err may succeed when attempted again.
// Client errors (4xx other than 429) and unusable responses are final;
// everything else is retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	status := StatusCode(err)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return false
	}
	return true
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsNotFound reports whether err means the server holds no data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoServerData) || StatusCode(err) == http.StatusNotFound
}

// ErrorCode extracts a machine-readable code from err.
func ErrorCode(err error) string {
	return ErrorCodeOr(err, ErrCodeSync)
}

// ErrorCodeOr is ErrorCode with the code to use when err carries none.
func ErrorCodeOr(err error, fallback string) string {
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Code != "" {
		return syncErr.Code
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return apiErr.Code
		}
		if apiErr.StatusCode != 0 {
			return CodeForStatus(apiErr.StatusCode)
		}
	}
	if errors.Is(err, ErrInvalidResponse) {
		return ErrCodeServerError
	}
	return fallback
}

// SyncError provides detailed sync failure information.
type SyncError struct {
	Code     string
	Phase    string
	ClientID string
	Err      error
}

// Sync phases.
const (
	PhasePush    = "push"
	PhaseFetch   = "fetch"
	PhasePersist = "persist"
)

func (e *SyncError) Error() string {
	if e.ClientID != "" {
		return fmt.Sprintf("sync %s [%s]: client %s: %v", e.Phase, e.Code, e.ClientID, e.Err)
	}
	return fmt.Sprintf("sync %s [%s]: %v", e.Phase, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failed key-value operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
