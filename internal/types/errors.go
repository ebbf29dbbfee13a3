package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing forecast-boundary errors.
type ErrorCode string

const (
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeFetchCancelled      ErrorCode = "fetch_cancelled"
	ErrCodeBadPayload          ErrorCode = "bad_payload"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
)

// AppError is the typed error used at the forecast-client boundary. The
// decision core itself never returns errors; collaborator failures stop here.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAppError creates an AppError wrapping an underlying cause (may be nil).
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *AppError) Unwrap() error { return e.Err }

// IsCancelled reports whether err represents a cancelled in-flight operation
// rather than a genuine failure. Cancellations are absorbed silently, never
// logged as errors or retried.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeFetchCancelled
}
