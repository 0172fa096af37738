package errs

import (
	"errors"
)

// Code is a suite error code.
type Code string

const (
	// Config marks missing or invalid configuration. Raised before any browser work.
	Config Code = "config"
	// Interaction marks a locator, navigation or input failure in the browser.
	Interaction Code = "interaction"
	// Assertion marks an observed page state that does not match the expectation.
	Assertion Code = "assertion"
	// IO marks a session artifact or report read/write failure.
	IO Code = "io"
	// Unavailable marks a browser driver that could not be started.
	Unavailable Code = "unavailable"
	Internal    Code = "internal"
)

// Error is a coded suite error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the outermost coded message without the cause chain.
// Untyped errors yield "internal error".
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// ExitCode maps an error code to a process exit status.
// Configuration problems exit 2 so CI can tell them apart from test failures.
func ExitCode(code Code) int {
	switch code {
	case Config:
		return 2
	case Unavailable:
		return 3
	default:
		return 1
	}
}
