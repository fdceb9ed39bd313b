package errs

import (
	"errors"
	"fmt"
)

// Error is the service-wide error type carrying a taxonomy code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Denied(msg string) error {
	return New(CodeAuthorizationDenied, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Invalid(msg string) error {
	return New(CodeValidationFailed, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Persistence(msg string, cause error) error {
	return Wrap(CodePersistenceFailure, msg, cause)
}

// CodeOf extracts the taxonomy code, or CodePersistenceFailure for
// unclassified errors coming out of the store.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodePersistenceFailure
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
