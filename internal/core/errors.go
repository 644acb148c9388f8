package core

import (
	"errors"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeInvalidArgument  = "invalid_argument"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeRateLimited      = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func errNotFound(msg string) error        { return coreError(ErrCodeNotFound, msg) }
func errUnauthorized(msg string) error    { return coreError(ErrCodeUnauthorized, msg) }
func errInvalidArgument(msg string) error { return coreError(ErrCodeInvalidArgument, msg) }
func errBadRequest(msg string) error      { return coreError(ErrCodeBadRequest, msg) }

// FromStoreError maps a persistence error onto the domain taxonomy.
// The underlying cause is not exposed to clients.
func FromStoreError(err error) *CoreError {
	if errors.Is(err, store.ErrNotFound) {
		return coreError(ErrCodeNotFound, "not found")
	}
	return coreError(ErrCodeStoreUnavailable, "storage unavailable, retry later")
}

// AsCoreError returns err as a *CoreError, treating unknown errors as persistence failures.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return FromStoreError(err)
}

// ErrorCode returns the domain error code carried by err, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return AsCoreError(err).Code
}
