// Package errors provides coded domain errors for the boundary service.
//
// Services create these at the point where an infrastructure or validation
// fact becomes a domain outcome; transports translate codes to status codes
// without inspecting messages. Messages are operator-facing and must never
// contain filtered clinical content.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for routing, logging, and HTTP translation.
type Code string

const (
	CodeInternal           Code = "internal"
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// CodeUnsafeContent marks content-safety failures: a filter computed an
	// output and the output failed a safety check. These are fail-closed and
	// must stay distinguishable from authorization failures in audit views.
	CodeUnsafeContent Code = "unsafe_content"
)

// DomainError carries a code alongside the message and optional cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode used in assertions.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to an HTTP status for transport layers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnsafeContent:
		// Unsafe output is an unprocessable request, not a server fault.
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
