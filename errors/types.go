package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Request validation errors
	ErrCodeInvalidName  ErrorCode = "INVALID_NAME"
	ErrCodePathEscape   ErrorCode = "PATH_ESCAPE"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Project errors
	ErrCodeProjectNotFound  ErrorCode = "PROJECT_NOT_FOUND"
	ErrCodeManifestNotFound ErrorCode = "MANIFEST_NOT_FOUND"
	ErrCodeSpawnFailed      ErrorCode = "SPAWN_FAILED"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Command execution errors
	ErrCodeCommandTimeout ErrorCode = "COMMAND_TIMEOUT"
	ErrCodeCommandFailed  ErrorCode = "COMMAND_FAILED"

	// Memory proxy errors
	ErrCodeToolNotAllowed ErrorCode = "TOOL_NOT_ALLOWED"
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"
	ErrCodeNotConfigured  ErrorCode = "NOT_CONFIGURED"

	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// DashError represents a structured error with context
type DashError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *DashError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *DashError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *DashError) WithDetail(key string, value interface{}) *DashError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *DashError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new DashError
func New(code ErrorCode, message string) *DashError {
	return &DashError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a DashError
func Wrap(err error, code ErrorCode, message string) *DashError {
	return &DashError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific DashError code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	dashErr, ok := err.(*DashError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return dashErr.Code
}

// Message returns the client-facing message of err. Uncoded errors are
// reported generically so internal details never reach an HTTP body.
func Message(err error) string {
	for e := err; e != nil; {
		if dashErr, ok := e.(*DashError); ok {
			return dashErr.Message
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = unwrapper.Unwrap()
	}
	return "internal server error"
}

// HTTPStatus maps an error to the status code returned by the dashboard API.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidName, ErrCodePathEscape, ErrCodeInvalidInput,
		ErrCodeManifestNotFound, ErrCodeToolNotAllowed:
		return http.StatusBadRequest
	case ErrCodeProjectNotFound:
		return http.StatusNotFound
	case ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	case ErrCodeNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
