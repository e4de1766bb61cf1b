// Package apperr carries the error taxonomy shared by the extraction core and
// the HTTP layer. Every error that crosses a package boundary is either an
// *Error or wraps one, so the server can map it to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	InvalidInput
	UnsupportedImageEncoding
	ExternalService
	ProcessTimeout
	ResourceNotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case UnsupportedImageEncoding:
		return "unsupported_image_encoding"
	case ExternalService:
		return "external_service_error"
	case ProcessTimeout:
		return "process_timeout"
	case ResourceNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrInvalidPageRange is returned for any page range that fails validation.
var ErrInvalidPageRange = &Error{Kind: InvalidInput, Msg: "Page range is invalid"}

// Is matches on identity first and otherwise on Kind, so callers can test
// errors.Is(err, apperr.ErrInvalidPageRange) against wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Kind == t.Kind && e.Msg == t.Msg && t.Err == nil)
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidInput:
		return http.StatusBadRequest
	case ResourceNotFound:
		return http.StatusNotFound
	case UnsupportedImageEncoding:
		return http.StatusUnprocessableEntity
	case ExternalService:
		return http.StatusBadGateway
	case ProcessTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
