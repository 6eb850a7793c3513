// Package errors is the project error type: a code that maps onto an HTTP status and a
// wire message, an optional field and operation label, and a wrapped cause.
// Import it as perr
package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine readable half of an error. The numbers are on the wire, so
// new codes go at the end
type ErrorCode uint16

const (
	// ErrorCodeUnknown is anything unclassified
	ErrorCodeUnknown ErrorCode = iota
	// ErrorCodePanic is a recovered handler panic
	ErrorCodePanic
	// ErrorCodeUnavailable is a transient failure; retrying may help
	ErrorCodeUnavailable
	// ErrorCodeTooManyRequests is an upstream rate limit
	ErrorCodeTooManyRequests
	// ErrorCodeConflict is a state clash, such as a second token for one session
	ErrorCodeConflict
	// ErrorCodeUnauthorized is a rejected provider credential
	ErrorCodeUnauthorized
	// ErrorCodeForbidden is a refused operation
	ErrorCodeForbidden
	// ErrorCodeInvalidArgument is well formed input the operation cannot use
	ErrorCodeInvalidArgument
	// ErrorCodeValidation is input failing struct validation
	ErrorCodeValidation
	// ErrorCodeJSON is an unreadable request body
	ErrorCodeJSON
	// ErrorCodeNotFound is an unknown id
	ErrorCodeNotFound
	// ErrorCodeExpired is a session past its deadline
	ErrorCodeExpired
	// ErrorCodeTimeout is a wait budget running out
	ErrorCodeTimeout
	// ErrorCodeDetection is a rule pack or detection engine failure
	ErrorCodeDetection
	// ErrorCodeProvider is a failure reported by a solving provider
	ErrorCodeProvider
	// ErrorCodeExhausted is a solve where every strategy failed
	ErrorCodeExhausted
)

var statusByCode = map[ErrorCode]int{
	ErrorCodeUnavailable:     http.StatusServiceUnavailable,
	ErrorCodeTooManyRequests: http.StatusTooManyRequests,
	ErrorCodeConflict:        http.StatusConflict,
	ErrorCodeUnauthorized:    http.StatusUnauthorized,
	ErrorCodeForbidden:       http.StatusForbidden,
	ErrorCodeInvalidArgument: http.StatusUnprocessableEntity,
	ErrorCodeValidation:      http.StatusBadRequest,
	ErrorCodeJSON:            http.StatusBadRequest,
	ErrorCodeNotFound:        http.StatusNotFound,
	ErrorCodeExpired:         http.StatusGone,
	ErrorCodeTimeout:         http.StatusGatewayTimeout,
	ErrorCodeProvider:        http.StatusBadGateway,
	ErrorCodeExhausted:       http.StatusUnprocessableEntity,
}

// HTTPStatusCode maps c to a status; unlisted codes are 500
func HTTPStatusCode(c ErrorCode) int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a code, a client safe message and an optional cause. Error() includes
// the cause; the wire form does not
type Error struct {
	code  ErrorCode
	msg   string
	field string
	op    string
	cause error
}

// Wire is what a client sees of an Error
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

// Unwrap exposes the cause to errors.Is and errors.As
func (e *Error) Unwrap() error { return e.cause }

// Code is the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field names the offending input field, if any
func (e *Error) Field() string { return e.field }

// Op labels the operation that failed, if set
func (e *Error) Op() string { return e.op }

// As finds the outermost *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrs.As(err, &e)
	return e, ok
}

// CodeOf is err's code, Unknown for foreign errors
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether CodeOf(err) is code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTP maps err to its status and wire form. Foreign errors expose their text
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	if e, ok := As(err); ok {
		return HTTPStatusCode(e.code), Wire{Code: e.code, Message: e.msg, Field: e.field}
	}
	return http.StatusInternalServerError, Wire{Code: ErrorCodeUnknown, Message: err.Error()}
}

// WithField returns a copy of err's *Error naming field. Foreign errors pass through
func WithField(err error, field string) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	c.field = field
	return &c
}

// WithOp returns a copy of err's *Error labelled op. Foreign errors pass through
func WithOp(err error, op string) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	c.op = op
	return &c
}

// Newf builds an error with a formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap attaches code and msg to cause
func Wrap(cause error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, cause: cause}
}

// Wrapf is Wrap with a formatted message
func Wrapf(cause error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), cause: cause}
}

// NotFoundf is Newf(ErrorCodeNotFound, ...)
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// InvalidArgf is Newf(ErrorCodeInvalidArgument, ...)
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// Conflictf is Newf(ErrorCodeConflict, ...)
func Conflictf(format string, a ...any) error { return Newf(ErrorCodeConflict, format, a...) }

// Expiredf is Newf(ErrorCodeExpired, ...)
func Expiredf(format string, a ...any) error { return Newf(ErrorCodeExpired, format, a...) }

// Timeoutf is Newf(ErrorCodeTimeout, ...)
func Timeoutf(format string, a ...any) error { return Newf(ErrorCodeTimeout, format, a...) }

// Detectionf is Newf(ErrorCodeDetection, ...)
func Detectionf(format string, a ...any) error { return Newf(ErrorCodeDetection, format, a...) }

// Providerf is Newf(ErrorCodeProvider, ...)
func Providerf(format string, a ...any) error { return Newf(ErrorCodeProvider, format, a...) }

// Exhaustedf is Newf(ErrorCodeExhausted, ...)
func Exhaustedf(format string, a ...any) error { return Newf(ErrorCodeExhausted, format, a...) }

// JSONErrf is Newf(ErrorCodeJSON, ...)
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }

// PanicErrf is Newf(ErrorCodePanic, ...)
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }

// Internalf is Newf(ErrorCodeUnknown, ...)
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// Retryable reports whether another attempt could succeed: Unavailable and
// TooManyRequests are, local cancellation and deadlines never are
func Retryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	}
	return false
}
