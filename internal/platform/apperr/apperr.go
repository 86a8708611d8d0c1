// Package apperr provides ArbFarm's unified structured error type, carried
// from the teacher's infrastructure/errors pattern.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the error kinds from spec.md §7.
type Code string

const (
	CodeDatabase       Code = "DATABASE"
	CodeNotFound       Code = "NOT_FOUND"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeExternalAPI    Code = "EXTERNAL_API"
	CodeValidation     Code = "VALIDATION"
	CodeSerialization  Code = "SERIALIZATION"
	CodeInternal       Code = "INTERNAL"
	CodeEventBus       Code = "EVENT_BUS"
	CodeExecution      Code = "EXECUTION"
	CodeThreatDetected Code = "THREAT_DETECTED"
	CodeConsensusFail  Code = "CONSENSUS_FAILED"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeConfiguration  Code = "CONFIGURATION"
	CodeHTTPRequest    Code = "HTTP_REQUEST"
	CodeTimeout        Code = "TIMEOUT"
)

// httpStatus mirrors original_source/.../error.rs's exact HTTP mapping.
var httpStatus = map[Code]int{
	CodeDatabase:       http.StatusInternalServerError,
	CodeNotFound:       http.StatusNotFound,
	CodeBadRequest:     http.StatusBadRequest,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeExternalAPI:    http.StatusBadGateway,
	CodeValidation:     http.StatusUnprocessableEntity,
	CodeSerialization:  http.StatusInternalServerError,
	CodeInternal:       http.StatusInternalServerError,
	CodeEventBus:       http.StatusInternalServerError,
	CodeExecution:      http.StatusInternalServerError,
	CodeThreatDetected: http.StatusForbidden,
	CodeConsensusFail:  http.StatusConflict,
	CodeRateLimited:    http.StatusTooManyRequests,
	CodeConfiguration:  http.StatusInternalServerError,
	CodeHTTPRequest:    http.StatusBadGateway,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// AppError is the structured error every component returns.
type AppError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the status code this error kind maps to.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Per-kind constructors, one per spec.md §7 error kind.

func Database(operation string, err error) *AppError {
	return Wrap(CodeDatabase, "database operation failed", err).WithDetails("operation", operation)
}

func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, "resource not found").WithDetails("resource", resource).WithDetails("id", id)
}

func BadRequest(reason string) *AppError {
	return New(CodeBadRequest, reason)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

func ExternalAPI(service string, err error) *AppError {
	return Wrap(CodeExternalAPI, "external API call failed", err).WithDetails("service", service)
}

func Validation(field, reason string) *AppError {
	return New(CodeValidation, "validation failed").WithDetails("field", field).WithDetails("reason", reason)
}

func Serialization(err error) *AppError {
	return Wrap(CodeSerialization, "serialization failed", err)
}

func Internal(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

func EventBus(message string, err error) *AppError {
	return Wrap(CodeEventBus, message, err)
}

func Execution(message string, err error) *AppError {
	return Wrap(CodeExecution, message, err)
}

func ThreatDetected(reason string) *AppError {
	return New(CodeThreatDetected, reason)
}

func ConsensusFailed(reason string) *AppError {
	return New(CodeConsensusFail, reason)
}

func RateLimited(reason string) *AppError {
	return New(CodeRateLimited, reason)
}

func Configuration(message string) *AppError {
	return New(CodeConfiguration, message)
}

func HTTPRequest(err error) *AppError {
	return Wrap(CodeHTTPRequest, "http request failed", err)
}

func Timeout(operation string) *AppError {
	return New(CodeTimeout, "operation timed out").WithDetails("operation", operation)
}

// IsAppError reports whether err (or something it wraps) is an *AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// As extracts an *AppError from err's chain, if present.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
