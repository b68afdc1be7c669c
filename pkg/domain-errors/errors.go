package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error so transports can map it to a status and
// callers can branch without string matching.
type Code string

const (
	// Generic codes shared by every feature.
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Privacy and proof codes. Generation-time failures only; verification
	// of untrusted proofs returns structured results instead of errors.
	CodeInvalidBudget         Code = "invalid_budget"
	CodeInsufficientAttribute Code = "insufficient_attribute"
	CodeMalformedProof        Code = "malformed_proof"
	CodeNullifierReused       Code = "nullifier_reused"
	CodeModeMismatch          Code = "mode_mismatch"
	CodeNoValidTicket         Code = "no_valid_ticket"
	CodeVerificationFailed    Code = "verification_failed"
	CodeCapacityExceeded      Code = "capacity_exceeded"
)

// Error is a coded domain error. Services create these; stores return
// sentinel errors which services translate.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a coded domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal so an
// unclassified error never leaks as anything weaker than a 500.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to its transport status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeInvalidBudget, CodeMalformedProof:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeInsufficientAttribute:
		return http.StatusForbidden
	case CodeNotFound, CodeNoValidTicket:
		return http.StatusNotFound
	case CodeConflict, CodeNullifierReused, CodeCapacityExceeded:
		return http.StatusConflict
	case CodeModeMismatch, CodeVerificationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
