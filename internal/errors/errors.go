// Package errors defines the typed errors the resolution engine surfaces.
// ResolveError provides context-aware error reporting with type classification.
package errors

import (
	"errors"
	"fmt"
)

// ResolveError represents errors that occur while resolving a stream
type ResolveError struct {
	Type    string
	Message string
	Cause   error
}

func (e *ResolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Error type constants
const (
	ErrorTypeAuthentication       = "AUTHENTICATION"
	ErrorTypeAccessDenied         = "ACCESS_DENIED"
	ErrorTypeResolveFailed        = "RESOLVE_FAILED"
	ErrorTypeConfigurationInvalid = "CONFIGURATION_INVALID"
)

// NewResolveErrorWithType creates a ResolveError with an explicit type
func NewResolveErrorWithType(errorType, message string, cause error) *ResolveError {
	return &ResolveError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewAuthenticationError creates a bad/expired API key error
func NewAuthenticationError(message string, cause error) *ResolveError {
	return NewResolveErrorWithType(ErrorTypeAuthentication, message, cause)
}

// NewAccessDeniedError creates a terminal account-level refusal
func NewAccessDeniedError(message string, cause error) *ResolveError {
	return NewResolveErrorWithType(ErrorTypeAccessDenied, message, cause)
}

// NewResolveFailedError wraps an unclassified failure with its upstream context
func NewResolveFailedError(message string, cause error) *ResolveError {
	return NewResolveErrorWithType(ErrorTypeResolveFailed, message, cause)
}

// NewConfigurationError creates a configuration-related error
func NewConfigurationError(message string, cause error) *ResolveError {
	return NewResolveErrorWithType(ErrorTypeConfigurationInvalid, message, cause)
}

// IsType reports whether err is a ResolveError of the given type
func IsType(err error, errorType string) bool {
	var re *ResolveError
	return errors.As(err, &re) && re.Type == errorType
}
