package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Transient errors, retried by callers before degrading
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"

	// Tracking errors
	ErrCodeTabNotTracked ErrorCode = "TAB_NOT_TRACKED"
	ErrCodeUnknownType   ErrorCode = "UNKNOWN_MESSAGE_TYPE"

	// Storage and migration errors
	ErrCodeStorage         ErrorCode = "STORAGE_FAILURE"
	ErrCodeMigrationFailed ErrorCode = "MIGRATION_FAILED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// TabwattError represents a structured error with context
type TabwattError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TabwattError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TabwattError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *TabwattError) WithDetail(key string, value interface{}) *TabwattError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *TabwattError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new TabwattError
func New(code ErrorCode, message string) *TabwattError {
	return &TabwattError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TabwattError
func Wrap(err error, code ErrorCode, message string) *TabwattError {
	return &TabwattError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific TabwattError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	twErr, ok := err.(*TabwattError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if twErr.Code == code {
		return true
	}
	return twErr.Cause != nil && Is(twErr.Cause, code)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	twErr, ok := err.(*TabwattError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return twErr.Code
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnavailable, ErrCodeTimeout:
		return true
	}
	return false
}
