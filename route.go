package apikit

import (
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"unicode"
)

// Endpoint describes a single (method, path template) pair bound to a
// handler. Build one with NewEndpoint or the Get/Post/... helpers; it must
// not be modified after registration.
type Endpoint struct {
	method  string
	pattern string

	summary     string
	desc        string
	tags        []string
	operationID string
	deprecated  bool
	hidden      bool
	status      int
	errors      []int
	extensions  map[string]any

	contentType string
	bodyLimit   int64
	strictQuery bool

	reqType   reflect.Type
	respType  reflect.Type
	errorType reflect.Type

	middleware []Middleware
	invoke     invoker
	funcName   string

	// set during registration
	template PathTemplate
	plan     *requestPlan
}

// RouteOption configures an endpoint at construction time.
type RouteOption func(*Endpoint)

// NewEndpoint builds an endpoint descriptor from a typed handler. Validation
// happens when it is registered.
func NewEndpoint[Req, Resp any](method, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Endpoint {
	e := &Endpoint{
		method:   strings.ToUpper(strings.TrimSpace(method)),
		pattern:  pattern,
		reqType:  reflect.TypeFor[Req](),
		respType: reflect.TypeFor[Resp](),
		invoke:   erase(h),
		funcName: handlerName(h),
	}

	for _, opt := range opts {
		opt(e)
	}

	// Determine default status: Void response → 204, otherwise 200.
	if e.status == 0 {
		if e.respType == voidType {
			e.status = http.StatusNoContent
		} else {
			e.status = http.StatusOK
		}
	}

	return e
}

// Method returns the HTTP method.
func (e *Endpoint) Method() string { return e.method }

// Path returns the normalized path template once registered, or the raw
// pattern before.
func (e *Endpoint) Path() string {
	if e.plan != nil {
		return e.template.String()
	}
	return e.pattern
}

// Template returns the parsed path template. It is zero before registration.
func (e *Endpoint) Template() PathTemplate { return e.template }

// Identity returns the endpoint identity: method and normalized template.
func (e *Endpoint) Identity() string { return e.method + " " + e.Path() }

// OperationID returns the operation id used in the generated document.
func (e *Endpoint) OperationID() string { return e.operationID }

// Tags returns the documentation tags.
func (e *Endpoint) Tags() []string { return append([]string(nil), e.tags...) }

// Status returns the default success status code.
func (e *Endpoint) Status() int { return e.status }

// RequestType returns the handler's request type.
func (e *Endpoint) RequestType() reflect.Type { return e.reqType }

// ResponseType returns the handler's response type.
func (e *Endpoint) ResponseType() reflect.Type { return e.respType }

// WithStatus sets the default HTTP status code for the response.
func WithStatus(code int) RouteOption {
	return func(e *Endpoint) {
		e.status = code
	}
}

// WithSummary sets the OpenAPI summary for the route.
func WithSummary(s string) RouteOption {
	return func(e *Endpoint) {
		e.summary = s
	}
}

// WithDescription sets the OpenAPI description for the route.
func WithDescription(d string) RouteOption {
	return func(e *Endpoint) {
		e.desc = d
	}
}

// WithTags adds OpenAPI tags to the route.
func WithTags(tags ...string) RouteOption {
	return func(e *Endpoint) {
		e.tags = append(e.tags, tags...)
	}
}

// WithDeprecated marks the route as deprecated in the OpenAPI document.
func WithDeprecated() RouteOption {
	return func(e *Endpoint) {
		e.deprecated = true
	}
}

// WithHidden keeps the route out of the generated document.
func WithHidden() RouteOption {
	return func(e *Endpoint) {
		e.hidden = true
	}
}

// WithErrors declares additional HTTP error status codes for the OpenAPI document.
func WithErrors(codes ...int) RouteOption {
	return func(e *Endpoint) {
		e.errors = append(e.errors, codes...)
	}
}

// WithOperationID sets a custom OpenAPI operationId.
func WithOperationID(id string) RouteOption {
	return func(e *Endpoint) {
		e.operationID = id
	}
}

// WithExtension adds an OpenAPI extension to the operation.
// The key must start with "x-".
func WithExtension(key string, value any) RouteOption {
	return func(e *Endpoint) {
		if e.extensions == nil {
			e.extensions = make(map[string]any)
		}
		e.extensions[key] = value
	}
}

// WithContentType declares the request body content type. Supported values
// are application/json (the default), application/x-www-form-urlencoded and
// application/octet-stream.
func WithContentType(ct string) RouteOption {
	return func(e *Endpoint) {
		e.contentType = ct
	}
}

// WithBodyLimit sets a per-route maximum request body size in bytes.
// This overrides the server-wide limit for this route.
func WithBodyLimit(maxBytes int64) RouteOption {
	return func(e *Endpoint) {
		e.bodyLimit = maxBytes
	}
}

// WithStrictQuery rejects query parameters the request type does not declare.
func WithStrictQuery() RouteOption {
	return func(e *Endpoint) {
		e.strictQuery = true
	}
}

// WithErrorType documents E as the body of this route's error responses,
// for handlers whose errors implement ErrorResponder.
func WithErrorType[E any]() RouteOption {
	return func(e *Endpoint) {
		e.errorType = reflect.TypeFor[E]()
	}
}

// WithMiddleware wraps this route's handler in mw.
func WithMiddleware(mw ...Middleware) RouteOption {
	return func(e *Endpoint) {
		e.middleware = append(e.middleware, mw...)
	}
}

// handlerName returns the symbol name of a top-level handler function, or ""
// for closures and methods.
func handlerName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	full := f.Name()
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		full = full[i+1:]
	}
	_, name, ok := strings.Cut(full, ".")
	if !ok || strings.ContainsAny(name, ".()[]") || strings.HasPrefix(name, "func") {
		return ""
	}
	return name
}

// generateOperationID derives an operation id from method and template:
// GET /widgets/{id} becomes "getWidgetsById".
func generateOperationID(method string, t PathTemplate) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, s := range t.segments {
		if s.Kind != SegmentLiteral {
			b.WriteString("By")
		}
		b.WriteString(camelWord(s.Value))
	}
	return b.String()
}

func camelWord(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
