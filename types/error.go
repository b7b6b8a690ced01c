package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Configuration error codes
const (
	ErrConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
)

// Backend (provider) error codes
const (
	ErrProviderRequest     ErrorCode = "PROVIDER_REQUEST"
	ErrProviderAuth        ErrorCode = "PROVIDER_AUTH"
	ErrProviderRateLimited ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrProviderMalformed   ErrorCode = "PROVIDER_MALFORMED_RESPONSE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrTimeout             ErrorCode = "TIMEOUT"
)

// Workflow error codes
const (
	ErrInvalidTransition  ErrorCode = "WORKFLOW_INVALID_TRANSITION"
	ErrIterationLimit     ErrorCode = "WORKFLOW_ITERATION_LIMIT"
	ErrWorkflowAborted    ErrorCode = "WORKFLOW_ABORTED"
	ErrWorkflowTerminated ErrorCode = "WORKFLOW_TERMINATED"
)

// Input validation and version-control error codes
const (
	ErrValidation ErrorCode = "VALIDATION"
	ErrGit        ErrorCode = "GIT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Provider  string         `json:"provider,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Cause     error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithContext attaches a diagnostic key/value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether the error carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsWorkflowError reports whether the error originated in the state machine.
func IsWorkflowError(err error) bool {
	switch GetErrorCode(err) {
	case ErrInvalidTransition, ErrIterationLimit, ErrWorkflowAborted, ErrWorkflowTerminated:
		return true
	}
	return false
}

// IsProviderError reports whether the error originated in a backend call.
func IsProviderError(err error) bool {
	switch GetErrorCode(err) {
	case ErrProviderRequest, ErrProviderAuth, ErrProviderRateLimited,
		ErrProviderMalformed, ErrProviderUnavailable, ErrTimeout:
		return true
	}
	return false
}
