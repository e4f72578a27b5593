// Package domainerrors provides coded errors for service and transport layers.
//
// Services return these so handlers can translate codes into HTTP statuses
// without string matching. Stores return pkg/platform/sentinel errors instead;
// services translate those into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and caller branching.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Registry lifecycle codes. These are checked preconditions: every one of
	// them is detected before any state mutation or notification.
	CodeNonceUnavailable Code = "nonce_unavailable"
	CodeNotPendingOwner  Code = "not_pending_owner"
	CodeNoAccessToRole   Code = "no_access_to_role"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the error's classification code.
func (e *Error) Code() Code { return e.code }

// New creates a coded error with the given message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause chain.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.code == code {
			return true
		}
		err = de.err
		if err == nil {
			break
		}
	}
	return false
}

// CodeOf extracts the outermost code from err, or CodeInternal if err carries
// no code. Transport layers use this for status mapping.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// Message returns the outermost coded message without the wrapped cause, so
// transport layers can expose it safely.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.msg
	}
	return ""
}
