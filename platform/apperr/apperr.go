// Package apperr is the error vocabulary shared by services and the HTTP
// layer. Services return *Error values; httpkit turns their Kind into a
// status code.
package apperr

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
	// KindUnavailable marks transient failures of the CRM or the mail
	// provider; callers retry them.
	KindUnavailable Kind = "unavailable"
)

var statusByKind = map[Kind]int{
	KindNotFound:     http.StatusNotFound,
	KindValidation:   http.StatusBadRequest,
	KindBadRequest:   http.StatusBadRequest,
	KindConflict:     http.StatusConflict,
	KindForbidden:    http.StatusForbidden,
	KindUnauthorized: http.StatusUnauthorized,
	KindInternal:     http.StatusInternalServerError,
	KindUnavailable:  http.StatusServiceUnavailable,
}

// FieldErrors maps a request field to what is wrong with it.
type FieldErrors map[string]string

type Error struct {
	Kind    Kind
	Message string
	Err     error
	// Details is written to the response body next to Message.
	Details any
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus falls back to 400 for kinds without a mapping.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusBadRequest
}

func New(kind Kind, message string) *Error { return &Error{Kind: kind, Message: message} }

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }

// Unavailable wraps a transient failure of an external system.
func Unavailable(message string, err error) *Error { return Wrap(KindUnavailable, message, err) }

// InvalidInput is a validation error carrying fields as its details. The
// message joins the field messages in field order.
func InvalidInput(fields FieldErrors) *Error {
	parts := make([]string, 0, len(fields))
	for _, field := range slices.Sorted(maps.Keys(fields)) {
		parts = append(parts, fields[field])
	}
	return &Error{Kind: KindValidation, Message: strings.Join(parts, "; "), Details: fields}
}

func FieldError(field, message string) *Error {
	return InvalidInput(FieldErrors{field: message})
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err's chain carries an *Error of kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
