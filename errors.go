package apikit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for request binding. Extraction failures wrap one of these
// so callers can tell which stage rejected the request.
var (
	ErrBindPath   = errors.New("bind path")
	ErrBindQuery  = errors.New("bind query")
	ErrBindHeader = errors.New("bind header")
	ErrBindCookie = errors.New("bind cookie")
	ErrBindBody   = errors.New("bind body")
)

// Error codes carried in the error_code field of the default envelope.
const (
	CodeInvalidPath          = "InvalidPath"
	CodeInvalidParameter     = "InvalidParameter"
	CodeInvalidBody          = "InvalidBody"
	CodeMissingBody          = "MissingBody"
	CodeUnsupportedMediaType = "UnsupportedMediaType"
	CodePayloadTooLarge      = "PayloadTooLarge"
	CodeValidationFailed     = "ValidationFailed"
	CodeNotFound             = "NotFound"
	CodeMethodNotAllowed     = "MethodNotAllowed"
	CodeTooManyRequests      = "TooManyRequests"
	CodeTimeout              = "Timeout"
	CodeInternal             = "Internal"
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is the framework's default error value. Message is sent to the
// client; Internal is only logged.
type HTTPError struct {
	Status    int
	ErrorCode string
	Message   string
	Internal  string
	Headers   http.Header

	cause error
}

// Error returns the internal message when set, otherwise the client message.
func (e *HTTPError) Error() string {
	if e.Internal != "" {
		return e.Internal
	}
	return e.Message
}

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Unwrap returns the underlying cause.
func (e *HTTPError) Unwrap() error { return e.cause }

// Error returns an error with the given HTTP status code and client message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ClientError returns a 4xx error with a machine-readable code.
func ClientError(status int, code, message string) *HTTPError {
	return &HTTPError{Status: status, ErrorCode: code, Message: message}
}

// BadRequest returns a 400 error.
func BadRequest(code, message string) *HTTPError {
	return ClientError(http.StatusBadRequest, code, message)
}

// NotFound returns the 404 error used for unmatched routes.
func NotFound() *HTTPError {
	return &HTTPError{
		Status:    http.StatusNotFound,
		ErrorCode: CodeNotFound,
		Message:   "Not Found",
	}
}

// MethodNotAllowed returns a 405 error advertising the allowed methods.
func MethodNotAllowed(allowed ...string) *HTTPError {
	h := make(http.Header)
	h.Set("Allow", strings.Join(allowed, ", "))
	return &HTTPError{
		Status:    http.StatusMethodNotAllowed,
		ErrorCode: CodeMethodNotAllowed,
		Message:   "Method Not Allowed",
		Headers:   h,
	}
}

// Internal returns a 500 error. The detail is logged, never sent.
func Internal(detail string) *HTTPError {
	return &HTTPError{
		Status:    http.StatusInternalServerError,
		ErrorCode: CodeInternal,
		Message:   "Internal Server Error",
		Internal:  detail,
	}
}

// Wrap converts err into a 500 HTTPError keeping err as the cause.
func Wrap(err error) *HTTPError {
	e := Internal(err.Error())
	e.cause = err
	return e
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// ExtractionError is a request-time failure to turn raw request data into the
// handler's argument. Field is empty for failures not tied to one field.
type ExtractionError struct {
	In      ParamLocation
	Field   string
	Code    string
	Message string

	stage error
	cause error
}

func (e *ExtractionError) Error() string {
	return e.Message
}

// Is matches the stage sentinel (ErrBindPath, ErrBindQuery, ...).
func (e *ExtractionError) Is(target error) bool { return e.stage == target }

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error { return e.cause }

// StatusCode is always 400.
func (e *ExtractionError) StatusCode() int { return http.StatusBadRequest }

// ValidationError describes a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned when constraint or validator checks reject an
// extracted request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// StatusCode is always 400.
func (v ValidationErrors) StatusCode() int { return http.StatusBadRequest }

// ErrorTransformer maps an application error to an HTTPError before the
// default conversion runs. Returning nil falls through to the default mapping.
type ErrorTransformer func(error) *HTTPError

// toHTTPError maps any error to the default taxonomy.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	var ee *ExtractionError
	if errors.As(err, &ee) {
		code := ee.Code
		if code == "" {
			code = CodeInvalidParameter
		}
		return &HTTPError{Status: http.StatusBadRequest, ErrorCode: code, Message: ee.Message, cause: err}
	}

	var ve ValidationErrors
	if errors.As(err, &ve) {
		return &HTTPError{Status: http.StatusBadRequest, ErrorCode: CodeValidationFailed, Message: ve.Error(), cause: err}
	}

	var mna *MethodNotAllowedError
	if errors.As(err, &mna) {
		e := MethodNotAllowed(mna.Allowed...)
		e.cause = err
		return e
	}

	if errors.Is(err, ErrNoMatch) {
		e := NotFound()
		e.cause = err
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &HTTPError{
			Status:    http.StatusServiceUnavailable,
			ErrorCode: CodeTimeout,
			Message:   "request timed out",
			Internal:  err.Error(),
			cause:     err,
		}
	}

	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() < http.StatusInternalServerError {
		return &HTTPError{Status: sc.StatusCode(), Message: err.Error(), cause: err}
	}

	e := Wrap(err)
	if sc != nil {
		e.Status = sc.StatusCode()
		e.Message = http.StatusText(e.Status)
	}
	return e
}
