// Package domainerrors provides coded errors for the domain layer.
//
// Services return these so transports can map a stable machine-readable code
// to a status without string matching. Stores return pkg/platform/sentinel
// errors instead; services translate at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeInvalidInput covers malformed caller input: zero or negative
	// amounts, past maturity dates, duplicate identifiers, bad prices.
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest covers requests that are syntactically wrong at the
	// transport boundary (unparseable IDs, missing fields).
	CodeBadRequest Code = "bad_request"

	// CodeForbidden means the caller lacks the capability for a restricted
	// operation.
	CodeForbidden Code = "forbidden"

	// CodeComplianceViolation means a transfer was blocked by the compliance
	// engine or ledger gating: frozen token or wallet, unverified identity,
	// sanctioned party, below minimum investment, over a rolling limit.
	CodeComplianceViolation Code = "compliance_violation"

	// CodeInvalidState means the operation is not valid for the entity's
	// current state: order not active, distribution closed, claim already
	// taken.
	CodeInvalidState Code = "invalid_state"

	// CodeReplay means a forced-transfer identifier was already consumed.
	CodeReplay Code = "replay"

	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
