package services

import (
	"errors"
	"net/http"
)

// ErrorKind classifies service failures into the stable taxonomy exposed
// to callers.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION_ERROR"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindInternal     ErrorKind = "INTERNAL"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:   http.StatusBadRequest,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindInvalidState: http.StatusConflict,
	KindInternal:     http.StatusInternalServerError,
}

// Error is a typed service error carrying its taxonomy kind. Services
// return these so controllers can map them to HTTP without inspecting
// message text.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error kind
func (e *Error) HTTPStatus() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AsError unwraps err into a typed service error if it is one
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// IsKind reports whether err is a service error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	if svcErr, ok := AsError(err); ok {
		return svcErr.Kind == kind
	}
	return false
}

func errValidation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func errForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func errNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func errConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func errInvalidState(message string) *Error {
	return &Error{Kind: KindInvalidState, Message: message}
}

func errInternal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
