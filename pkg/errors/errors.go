// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy for quickscript.
// Contract violations surface at registration time, everything else at
// call time; transport adapters map codes onto their wire status model.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies quickscript errors for dispatch and monitoring.
type ErrorCode string

const (
	// CodeContract indicates a function signature violated its role's
	// shape rules. Raised at registration time; the function is never
	// wrapped.
	CodeContract ErrorCode = "CONTRACT_ERROR"

	// CodeValidation indicates malformed input or a non-conforming
	// result at call time.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeDependency indicates a declared external dependency could not
	// be resolved before invocation.
	CodeDependency ErrorCode = "DEPENDENCY_ERROR"

	// CodeEnvironment indicates a declared environment variable was
	// missing or not coercible to its declared kind.
	CodeEnvironment ErrorCode = "ENVIRONMENT_ERROR"

	// CodeNotFound indicates a function or collection lookup failed.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a typed error with call-site context for observability.
// It implements the error interface and can be unwrapped with errors.As.
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // for REST responses
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for adapter error envelopes.
func (e *Error) MarshalJSON() ([]byte, error) {
	payload := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Cause       string                 `json:"cause,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		payload.Cause = e.Err.Error()
	}
	return json.Marshal(payload)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Recoverable: codeRecoverable(code),
		StatusCode:  codeToStatusCode(code),
	}
}

// Newf creates a new Error with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable overrides whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to an *Error, wrapping unknown errors
// as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*Error); ok {
		return qe
	}
	return New(CodeInternal, "wrapped error", err)
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	qe, ok := err.(*Error)
	return ok && qe.Code == code
}

// IsContract reports whether err is a contract error.
func IsContract(err error) bool { return Is(err, CodeContract) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return Is(err, CodeValidation) }

// IsDependency reports whether err is a dependency error.
func IsDependency(err error) bool { return Is(err, CodeDependency) }

// IsEnvironment reports whether err is an environment error.
func IsEnvironment(err error) bool { return Is(err, CodeEnvironment) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }

// codeRecoverable reports whether callers can retry after fixing the
// precondition. Contract errors are permanent by definition.
func codeRecoverable(code ErrorCode) bool {
	switch code {
	case CodeDependency, CodeEnvironment:
		return true
	default:
		return false
	}
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeValidation:
		return 422
	case CodeDependency, CodeEnvironment:
		return 424
	default:
		return 500
	}
}
