package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Configuration and lookup errors
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeServiceNotFound  ErrorCode = "SERVICE_NOT_FOUND"
	ErrCodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// Routing errors
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTransportFailure   ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeHealthProbeFailed  ErrorCode = "HEALTH_PROBE_FAILED"

	// Request surface errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// Unavailability reason codes surfaced to callers in 503 responses.
const (
	ReasonCircuitOpen        = "circuit_open"
	ReasonNoHealthyInstances = "no_healthy_instances"
	ReasonRetriesExhausted   = "retries_exhausted"
)

// GatewayError represents a structured error with context
type GatewayError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Reason    string                 `json:"reason,omitempty"`
	Service   string                 `json:"service,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Service, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *GatewayError) Is(target error) bool {
	if t, ok := target.(*GatewayError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *GatewayError) WithMetadata(key string, value interface{}) *GatewayError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeServiceNotFound, ErrCodeInstanceNotFound:
		return 404
	case ErrCodeConfiguration, ErrCodeConfigLoad:
		return 400
	case ErrCodeAuthenticationFailed:
		return 401
	case ErrCodeRateLimitExceeded:
		return 429
	case ErrCodeServiceUnavailable, ErrCodeTransportFailure:
		return 503
	case ErrCodeUpstreamTimeout:
		return 504
	default:
		return 500
	}
}

// NewError creates a new GatewayError
func NewError(code ErrorCode, message string) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with GatewayError structure
func WrapError(err error, code ErrorCode, message string) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
	}
}

// NewConfigurationError creates an error for invalid or duplicate configuration
func NewConfigurationError(message string) *GatewayError {
	return NewError(ErrCodeConfiguration, message)
}

// NewServiceNotFoundError creates an error for an unknown logical service
func NewServiceNotFoundError(serviceName string) *GatewayError {
	err := NewError(ErrCodeServiceNotFound, fmt.Sprintf("service '%s' is not registered", serviceName))
	err.Service = serviceName
	return err
}

// NewServiceUnavailableError creates the 503-class error returned to callers.
// The reason is one of the machine-readable reason codes.
func NewServiceUnavailableError(serviceName, reason string) *GatewayError {
	err := NewError(ErrCodeServiceUnavailable, fmt.Sprintf("service '%s' is unavailable", serviceName))
	err.Service = serviceName
	err.Reason = reason
	return err
}

// IsGatewayError checks if an error is a GatewayError
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return ErrCodeInternalError
}

// GetReason extracts the unavailability reason from an error, if any
func GetReason(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Reason
	}
	return ""
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.HTTPStatusCode()
	}
	return 500
}
