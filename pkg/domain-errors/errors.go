// Package domainerrors defines the coded error type services return.
//
// Stores speak infrastructure sentinels; services translate those into
// coded domain errors, and the HTTP layer maps codes onto statuses. The
// code travels with the error through wrapping, so a handler can decide
// the response without knowing which layer failed.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers and the transport layer.
type Code string

const (
	CodeValidation         Code = "validation_failed"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

// Unwrap exposes the cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the error's classification.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the message without the wrapped cause. WriteError uses
// it so internal details never ride along into responses.
func (e *Error) Message() string {
	return e.message
}

// New returns a coded error with the given message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause
// stays reachable through errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// HasCode reports whether any error in the chain is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			if derr.code == code {
				return true
			}
			err = derr.cause
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain.
// Unclassified errors report CodeInternal so nothing leaks by default.
func CodeOf(err error) Code {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain error's message, or the plain
// error text for unclassified errors.
func MessageOf(err error) string {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
