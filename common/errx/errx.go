package errx

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code surfaced in pipeline responses.
type Code string

const (
	CodeOutOfScope            Code = "OUT_OF_SCOPE"
	CodeOrchestration         Code = "ORCHESTRATION_ERROR"
	CodeValidation            Code = "VALIDATION_FAILED"
	CodeDependencyUnavailable Code = "DEPENDENCY_UNAVAILABLE"
	CodeNotFound              Code = "NOT_FOUND"
)

// AppError wraps an underlying error with a code and a user-safe message.
type AppError struct {
	Err     error
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates an AppError without an underlying cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Code: code, Message: message}
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
