package functions

import (
	"errors"
	"fmt"
)

// Error codes shared with cloud code clients.
const (
	CodeInternalServerError = 1
	CodeInvalidJSON         = 107
	CodeTimeout             = 124
	CodeScriptFailed        = 141
	CodeValidationError     = 142
)

// Kind classifies where an Error came from.
type Kind string

const (
	KindUnknownFunction  Kind = "unknown_function"
	KindValidationFailed Kind = "validation_failed"
	KindScriptFailed     Kind = "script_failed"
	KindExecution        Kind = "execution_error"
	KindLoggingFault     Kind = "logging_fault"
	KindInternal         Kind = "internal"
)

// Error is a classified failure. Only Code and Message go on the wire.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an execution error with an explicit code.
func NewError(code int, message string) *Error {
	return &Error{Kind: KindExecution, Code: code, Message: message}
}

// ScriptFailed builds an error carrying only a message.
func ScriptFailed(message string) *Error {
	return &Error{Kind: KindScriptFailed, Code: CodeScriptFailed, Message: message}
}

// UnknownFunction is returned when no function is registered under name.
func UnknownFunction(name string) *Error {
	return &Error{
		Kind:    KindUnknownFunction,
		Code:    CodeScriptFailed,
		Message: fmt.Sprintf("Invalid function: %q", name),
	}
}

// ValidationFailed is returned when a validator rejects a call.
func ValidationFailed(name string) *Error {
	return &Error{
		Kind:    KindValidationFailed,
		Code:    CodeValidationError,
		Message: fmt.Sprintf("Validation failed for function %q.", name),
	}
}

// LoggingFault wraps a failure raised while recording an outcome.
func LoggingFault(name string, cause error) *Error {
	return &Error{
		Kind:    KindLoggingFault,
		Code:    CodeInternalServerError,
		Message: fmt.Sprintf("Failed to record result of cloud function %q: %v", name, cause),
		cause:   cause,
	}
}

// Internal wraps an unexpected failure, such as a panicking function.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalServerError, Message: message, cause: cause}
}

// AsError extracts a classified error from err.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
