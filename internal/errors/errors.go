// Package errors provides unified error handling for the hub services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Authentication errors (1xxx)
	ErrCodeUnauthorized ErrorCode = "AUTH_1001"
	ErrCodeInvalidToken ErrorCode = "AUTH_1002"
	ErrCodeTokenExpired ErrorCode = "AUTH_1003"

	// Authorization errors (2xxx)
	ErrCodeForbidden         ErrorCode = "AUTHZ_2001"
	ErrCodeOwnershipRequired ErrorCode = "AUTHZ_2002"

	// Validation errors (3xxx)
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodePayloadTooLarge  ErrorCode = "VAL_3004"
	ErrCodeTemplateRender   ErrorCode = "VAL_3005"

	// Resource errors (4xxx)
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Service errors (5xxx)
	ErrCodeInternal             ErrorCode = "SVC_5001"
	ErrCodeDatabaseError        ErrorCode = "SVC_5002"
	ErrCodeConnectorError       ErrorCode = "SVC_5003"
	ErrCodeUnsupportedOperation ErrorCode = "SVC_5004"
	ErrCodeTimeout              ErrorCode = "SVC_5005"
	ErrCodeRateLimitExceeded    ErrorCode = "SVC_5006"
	ErrCodeTransportError       ErrorCode = "SVC_5007"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`

	// Transient marks errors that may succeed on retry (transport failures,
	// timeouts, throttling). Delivery paths consult this via IsRetryable.
	Transient bool `json:"-"`

	// RetryAfter carries a downstream advisory delay when one was provided.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Authentication Errors

func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(ErrCodeInvalidToken, "Invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *ServiceError {
	return New(ErrCodeTokenExpired, "Authentication token has expired", http.StatusUnauthorized)
}

// Authorization Errors

func Forbidden(message string) *ServiceError {
	return New(ErrCodeForbidden, message, http.StatusForbidden)
}

func OwnershipRequired(resource string) *ServiceError {
	return New(ErrCodeOwnershipRequired, "Ownership verification required", http.StatusForbidden).
		WithDetails("resource", resource)
}

// Validation Errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "Missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ErrCodeInvalidFormat, "Invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func PayloadTooLarge(limit int64) *ServiceError {
	return New(ErrCodePayloadTooLarge, "Payload exceeds maximum size", http.StatusBadRequest).
		WithDetails("limit_bytes", limit)
}

func TemplateRender(reason string) *ServiceError {
	return New(ErrCodeTemplateRender, "Template rendering failed", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// Resource Errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "Resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, name string) *ServiceError {
	return New(ErrCodeAlreadyExists, "Resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("name", name)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Service Errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeDatabaseError, "Database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// ConnectorFailure reports a downstream connector failure. Transient failures
// may be retried by the caller; permanent ones should finalize.
func ConnectorFailure(connector string, transient bool, err error) *ServiceError {
	e := Wrap(ErrCodeConnectorError, "Connector operation failed", http.StatusBadGateway, err).
		WithDetails("connector", connector)
	e.Transient = transient
	return e
}

func UnsupportedOperation(connector, op string) *ServiceError {
	return New(ErrCodeUnsupportedOperation, "Operation not supported by connector", http.StatusBadRequest).
		WithDetails("connector", connector).
		WithDetails("operation", op)
}

func TransportFailure(target string, err error) *ServiceError {
	e := Wrap(ErrCodeTransportError, "Delivery transport failed", http.StatusBadGateway, err).
		WithDetails("target", target)
	e.Transient = true
	return e
}

func Timeout(operation string) *ServiceError {
	e := New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
	e.Transient = true
	return e
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	e := New(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
	e.Transient = true
	return e
}

// RateLimited reports downstream throttling with an advisory retry delay.
func RateLimited(retryAfter time.Duration) *ServiceError {
	e := New(ErrCodeRateLimitExceeded, "Rate limited by downstream", http.StatusTooManyRequests)
	e.Transient = true
	e.RetryAfter = retryAfter
	return e
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether a delivery path may retry after this error.
func IsRetryable(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Transient
	}
	return false
}

// AdvisoryRetryAfter returns the downstream-advised delay, if any.
func AdvisoryRetryAfter(err error) (time.Duration, bool) {
	if serviceErr := GetServiceError(err); serviceErr != nil && serviceErr.RetryAfter > 0 {
		return serviceErr.RetryAfter, true
	}
	return 0, false
}

// IsNotFound reports whether the error chain carries a not-found code.
func IsNotFound(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code == ErrCodeNotFound
	}
	return false
}

// IsConflict reports whether the error chain carries a conflict code.
func IsConflict(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code == ErrCodeConflict || serviceErr.Code == ErrCodeAlreadyExists
	}
	return false
}
