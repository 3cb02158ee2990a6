package apikit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Response is a fully converted HTTP response. Exactly one of Body or Stream
// is used; Stream wins when both are set.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Stream io.Reader
}

// CookieSetter is optionally implemented by response types to set cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// HeaderSetter is optionally implemented by response types to set response headers.
type HeaderSetter interface {
	SetHeaders(h http.Header)
}

// Redirect is returned from a handler to issue an HTTP redirect.
type Redirect struct {
	URL    string
	Status int
}

// ErrorContext is passed to ErrorResponder implementations.
type ErrorContext struct {
	RequestID string
	Endpoint  *Endpoint
}

// ErrorResponder is implemented by application errors that render their own
// response. The x-request-id header is always set on the result.
type ErrorResponder interface {
	error
	ErrorResponse(ErrorContext) *Response
}

// ErrorEnvelope is the JSON body of the default error response. The
// error_code key is left out when the error carries no code, and the
// document schema marks it optional to match.
type ErrorEnvelope struct {
	Message   string  `json:"message"`
	ErrorCode *string `json:"error_code,omitempty"`
	RequestID string  `json:"request_id"`
}

// convertSuccess turns a handler result into a Response. status is the
// endpoint's default success status.
func convertSuccess(resp any, status int) (*Response, error) {
	switch v := resp.(type) {
	case nil, *Void:
		return &Response{Status: status, Header: make(http.Header)}, nil
	case *Redirect:
		code := v.Status
		if code == 0 {
			code = http.StatusFound
		}
		h := make(http.Header)
		h.Set("Location", v.URL)
		return &Response{Status: code, Header: h}, nil
	case *Stream:
		return v.response(status), nil
	case *SSEStream:
		return v.response(), nil
	}

	h := make(http.Header)
	if cs, ok := resp.(CookieSetter); ok {
		for _, c := range cs.Cookies() {
			if s := c.String(); s != "" {
				h.Add("Set-Cookie", s)
			}
		}
	}
	if hs, ok := resp.(HeaderSetter); ok {
		hs.SetHeaders(h)
	}
	if sc, ok := resp.(StatusCoder); ok {
		status = sc.StatusCode()
	}

	body, err := encodeJSON(resp)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", resp, err)
	}
	h.Set("Content-Type", ContentTypeJSON)
	return &Response{Status: status, Header: h, Body: body}, nil
}

// convertError turns a handler or pipeline error into a Response. The returned
// HTTPError is non-nil when the default mapping was used, for logging.
func convertError(err error, ectx ErrorContext, transform ErrorTransformer) (*Response, *HTTPError) {
	var er ErrorResponder
	if errors.As(err, &er) {
		resp, cerr := customErrorResponse(er, ectx)
		if cerr == nil {
			return resp, nil
		}
		he := Internal(cerr.Error())
		he.cause = err
		return errorEnvelope(he, ectx.RequestID), he
	}

	var he *HTTPError
	if transform != nil {
		he = transform(err)
	}
	if he == nil {
		he = toHTTPError(err)
	}
	return errorEnvelope(he, ectx.RequestID), he
}

func customErrorResponse(er ErrorResponder, ectx ErrorContext) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp, err = nil, fmt.Errorf("error converter for %T panicked: %v", er, rec)
		}
	}()
	resp = er.ErrorResponse(ectx)
	if resp == nil {
		return nil, fmt.Errorf("error converter for %T returned no response", er)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusInternalServerError
	}
	return resp, nil
}

// errorEnvelope renders he as the default JSON error body.
func errorEnvelope(he *HTTPError, requestID string) *Response {
	status := he.Status
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	env := ErrorEnvelope{Message: he.Message, RequestID: requestID}
	if env.Message == "" {
		env.Message = http.StatusText(status)
	}
	if he.ErrorCode != "" {
		code := he.ErrorCode
		env.ErrorCode = &code
	}

	//nolint:errchkjson // envelope of strings always marshals
	body, _ := json.Marshal(env)

	h := make(http.Header)
	for k, vs := range he.Headers {
		h[k] = append([]string(nil), vs...)
	}
	h.Set("Content-Type", ContentTypeJSON)
	return &Response{Status: status, Header: h, Body: body}
}

// writeResponse copies resp onto w. The request id header is set last so it
// overrides anything the converter produced.
func writeResponse(w http.ResponseWriter, resp *Response, requestID string) error {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set(RequestIDHeader, requestID)

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if resp.Stream != nil {
		if c, ok := resp.Stream.(io.Closer); ok {
			defer c.Close()
		}
		h.Del("Content-Length")
		w.WriteHeader(status)
		return copyFlush(w, resp.Stream)
	}

	if len(resp.Body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(status)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}
