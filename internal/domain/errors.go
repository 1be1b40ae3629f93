package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies failures into the engine taxonomy. Validation,
// NotFound and Conflict surface to the caller; Integrity aborts and logs at
// high severity; Transient is retried before surfacing.
type ErrorType string

const (
	ErrorValidation ErrorType = "VALIDATION"
	ErrorNotFound   ErrorType = "NOT_FOUND"
	ErrorConflict   ErrorType = "CONFLICT"
	ErrorIntegrity  ErrorType = "INTEGRITY"
	ErrorTransient  ErrorType = "TRANSIENT"
)

// ErrorCode is the structured, user-visible failure code.
type ErrorCode string

const (
	CodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	CodeInvalidParty            ErrorCode = "INVALID_PARTY"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeInsufficientStock       ErrorCode = "INSUFFICIENT_STOCK"
	CodeInsufficientUnits       ErrorCode = "INSUFFICIENT_UNITS"
	CodeOverbooked              ErrorCode = "OVERBOOKED"
	CodeExcessiveReturnQuantity ErrorCode = "EXCESSIVE_RETURN_QUANTITY"
	CodeExcessiveQuantity       ErrorCode = "EXCESSIVE_QUANTITY"
	CodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	CodeExtensionLimitExceeded  ErrorCode = "EXTENSION_LIMIT_EXCEEDED"
	CodeReturnWindowExpired     ErrorCode = "RETURN_WINDOW_EXPIRED"
	CodeIntegrityViolation      ErrorCode = "INTEGRITY_VIOLATION"
	CodeTransient               ErrorCode = "TRANSIENT_FAILURE"
)

// ErrorDetail is one per-field (or per-line) entry in a collected validation
// failure.
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AppError is the engine's structured error. It carries the taxonomy type,
// a stable code, a human message and optional per-field details.
type AppError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Details []ErrorDetail
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails attaches per-field details.
func (e *AppError) WithDetails(details ...ErrorDetail) *AppError {
	e.Details = append(e.Details, details...)
	return e
}

// Validationf builds a Validation error.
func Validationf(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorValidation, Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithCode builds a Validation error carrying a specific code.
func ValidationWithCode(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict error with the given business-rule code.
func Conflictf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Integrityf builds a fatal Integrity error. These are never expected
// outcomes; they signal a bug.
func Integrityf(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorIntegrity, Code: CodeIntegrityViolation, Message: fmt.Sprintf(format, args...)}
}

// Transientf builds a retryable Transient error.
func Transientf(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorTransient, Code: CodeTransient, Message: fmt.Sprintf(format, args...)}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsConflict reports whether err is a Conflict with the given code.
func IsConflict(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == ErrorConflict && appErr.Code == code
}

// IsType reports whether err carries the given taxonomy type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == t
}

// HTTPStatus maps an error to the transport status code. Integrity errors
// deliberately surface as a generic 500; their message is for the logs.
func HTTPStatus(err error) int {
	appErr, ok := AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrorValidation:
		return http.StatusBadRequest
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorConflict:
		return http.StatusConflict
	case ErrorTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
