// Package errors defines the machine-readable error codes the billing core
// surfaces to its callers. Every code represents a decision the caller has to
// make; none of them is recovered from silently.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidInput marks malformed request input: unparseable bodies,
	// non-numeric ids, missing required fields, bad dates.
	CodeInvalidInput Code = "INVALID_INPUT"

	// Timer errors
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Ledger errors
	CodeInvalidDuration    Code = "INVALID_DURATION"
	CodeEntryNotFound      Code = "ENTRY_NOT_FOUND"
	CodeTaskNotFound       Code = "TASK_NOT_FOUND"
	CodeEntryAlreadyBilled Code = "ENTRY_ALREADY_BILLED"

	// Rate errors
	CodeInvalidRate Code = "INVALID_RATE"
	CodeMissingRate Code = "MISSING_RATE"

	// Invoice errors
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
)

// Error carries a domain code alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Code  Code
	msg   string
	cause error
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two domain errors by code, so sentinel comparisons like
// errors.Is(err, errors.New(CodeMissingRate, "")) work regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the domain code from err, or CodeUnknown if err carries none.
func CodeOf(err error) Code {
	var domain *Error
	if stderrors.As(err, &domain) {
		return domain.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
