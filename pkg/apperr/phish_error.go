package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	// Validation errors
	CodeBadRequest    = "BAD_REQUEST"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeMissingField  = "MISSING_FIELD"
	CodeBatchTooLarge = "BATCH_TOO_LARGE"

	// Resource errors
	CodeNotFound = "NOT_FOUND"

	// Infrastructure errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimited   = "RATE_LIMITED"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeModelError    = "MODEL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// InternalMessage is the only message clients see for 5xx errors.
const InternalMessage = "An unexpected error occurred"

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: "unauthorized",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func BatchTooLarge(size, limit int) *AppError {
	return &AppError{
		Code:    CodeBatchTooLarge,
		Message: fmt.Sprintf("batch of %d exceeds the limit of %d", size, limit),
		Status:  http.StatusRequestEntityTooLarge,
		Details: map[string]any{"size": size, "limit": limit},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Infrastructure errors
func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Unavailable(dependency string) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("%s is not available", dependency),
		Status:  http.StatusServiceUnavailable,
		Details: map[string]any{"dependency": dependency},
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ModelError wraps a failure inside feature extraction, scaling or inference.
func ModelError(stage string, err error) *AppError {
	return &AppError{
		Code:    CodeModelError,
		Message: "model inference failed",
		Status:  http.StatusInternalServerError,
		Details: map[string]any{"stage": stage},
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

var ErrRateLimited = New(CodeRateLimited, "too many requests", http.StatusTooManyRequests)

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is an AppError carrying code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// PublicMessage is the text a client may see for err. Server-side failures
// collapse to InternalMessage.
func PublicMessage(err error) string {
	appErr := AsAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		return InternalMessage
	}
	return appErr.Message
}
