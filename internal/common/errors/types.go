// Package errors defines the typed errors shared across the duplicator.
//
// Configuration problems are reported as ErrTypeConfig or ErrTypeValidation
// at registration time. Transport failures of a duplicated call are split
// into ErrTypeTimeout and ErrTypeConnection so the dispatcher can count
// them separately.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConfig is a rule or setting rejected at registration time
	ErrTypeConfig ErrorType = "config"
	// ErrTypeValidation is a malformed value handed to an operation
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeTimeout is a call that did not complete within its deadline
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeConnection is any other transport failure, including an open
	// circuit breaker
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeOther is reported by GetType for errors that are not AppErrors
	ErrTypeOther ErrorType = "other"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error renders "type: message [k=v ...]: cause" with context keys sorted
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte(']')
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// ConfigErrorf creates a configuration error wrapping cause
func ConfigErrorf(cause error, format string, args ...interface{}) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
		Cause:   cause,
	}
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeConnection, Message: msg, Cause: cause}
}

// IsType checks if err, or any error it wraps, is an AppError of errType
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// IsTimeout reports whether a duplicated call ran out of time
func IsTimeout(err error) bool {
	return IsType(err, ErrTypeTimeout)
}

// GetType returns the type of the outermost AppError in err's chain,
// ErrTypeOther for foreign errors and "" for nil
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeOther
	}
	return appErr.Type
}

// ContextValue looks key up in the context of the first AppError of err's
// chain
func ContextValue(err error, key string) (interface{}, bool) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return nil, false
	}
	v, ok := appErr.Context[key]
	return v, ok
}
