// Package taxonomy provides structured error classification and retry
// configuration for external tool invocations.
package taxonomy

import (
	"errors"
	"fmt"
	"time"

	"dwagent/pkg/proto"
)

// ErrorType represents different categories of tool errors for retry and
// escalation logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient ErrorType = iota
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit

	// Non-retryable error types.

	// ErrorTypeValidation represents a malformed or multi-action call,
	// rejected before dispatch with no external side effect.
	ErrorTypeValidation
	// ErrorTypeSemantic represents an external rejection of the action itself
	// (bad identifier, malformed statement). Never retried automatically.
	ErrorTypeSemantic
	// ErrorTypeAuth represents authentication errors (401/403, bad credentials).
	ErrorTypeAuth
	// ErrorTypeFatal represents unrecoverable structural failures.
	ErrorTypeFatal
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeSemantic:
		return "semantic"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeFatal:
		return "fatal"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Default retry constants - overridable via config.
const (
	DefaultTransientRetries = 3
	DefaultRateLimitRetries = 5
	DefaultUnknownRetries   = 1
)

// RetryConfig defines exponential backoff configuration for each error type.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay for exponential backoff
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter to prevent thundering herd
}

// DefaultRetryConfigs provides default retry configurations for each error type.
//
//nolint:gochecknoglobals // Configuration map - acceptable for package defaults
var DefaultRetryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeTransient: {
		MaxRetries:    DefaultTransientRetries,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
	ErrorTypeRateLimit: {
		MaxRetries:    DefaultRateLimitRetries,
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
	ErrorTypeValidation: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	ErrorTypeSemantic: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	ErrorTypeAuth: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	ErrorTypeFatal: {
		MaxRetries:    0,
		InitialDelay:  0,
		MaxDelay:      0,
		BackoffFactor: 1.0,
		Jitter:        false,
	},
	ErrorTypeUnknown: {
		MaxRetries:    DefaultUnknownRetries,
		InitialDelay:  1 * time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
}

// Error represents a classified tool error with retry metadata.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Tool       string    // Tool name that produced the error
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tool error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("tool error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("tool error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type should be retried.
// Uses blocklist approach: everything is retryable UNLESS explicitly non-retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeSemantic, ErrorTypeAuth, ErrorTypeFatal:
		return false
	default:
		return true
	}
}

// GetRetryConfig returns the retry configuration for this error type.
func (e *Error) GetRetryConfig() RetryConfig {
	if config, exists := DefaultRetryConfigs[e.Type]; exists {
		return config
	}
	return DefaultRetryConfigs[ErrorTypeUnknown]
}

// ResultStatus maps the error type to the wire-level tool result status.
func (e *Error) ResultStatus() proto.ResultStatus {
	switch e.Type {
	case ErrorTypeTransient, ErrorTypeRateLimit, ErrorTypeUnknown:
		return proto.ResultTransient
	case ErrorTypeValidation, ErrorTypeSemantic:
		return proto.ResultSemantic
	case ErrorTypeAuth, ErrorTypeFatal:
		return proto.ResultFatal
	default:
		return proto.ResultFatal
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified tool error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified tool error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified tool error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Semanticf creates a semantic error with a formatted message.
func Semanticf(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeSemantic,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewRetriesExhaustedError wraps a transient error once a call's retry budget
// is spent, so callers can distinguish "gave up" from "first failure".
func NewRetriesExhaustedError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeTransient,
		Err:     cause,
		Message: fmt.Sprintf("retries exhausted after %d attempts", attempts),
	}
}
