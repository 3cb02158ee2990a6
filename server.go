package apikit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SpanStarter is a tracing hook interface for creating spans per request.
// Implement this with your preferred tracing backend (e.g., OpenTelemetry).
type SpanStarter interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func())
}

// Server serves a Registry over HTTP. It implements http.Handler.
type Server struct {
	reg      *Registry
	handler  http.Handler
	handlers map[*Endpoint]http.Handler

	logger     *slog.Logger
	state      any
	strict     bool
	bodyLimit  int64
	validator  Validator
	transform  ErrorTransformer
	middleware []Middleware
	trustID    bool
	idGen      IDGenerator
	tracer     SpanStarter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger for internal errors and recovered panics.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithState sets a value handed to every handler; read it with State[T].
func WithState(state any) ServerOption {
	return func(s *Server) {
		s.state = state
	}
}

// WithStrictRequests rejects unknown query parameters and unknown JSON body
// fields on every route.
func WithStrictRequests() ServerOption {
	return func(s *Server) {
		s.strict = true
	}
}

// WithRequestBodyLimit sets the server-wide request body limit in bytes.
func WithRequestBodyLimit(n int64) ServerOption {
	return func(s *Server) {
		s.bodyLimit = n
	}
}

// WithValidator replaces the default go-playground validator. Nil disables
// validator checks; constraint tags and SelfValidator still run.
func WithValidator(v Validator) ServerOption {
	return func(s *Server) {
		s.validator = v
	}
}

// WithErrorTransformer sets a hook that maps errors before the default
// conversion.
func WithErrorTransformer(t ErrorTransformer) ServerOption {
	return func(s *Server) {
		s.transform = t
	}
}

// Use adds server-wide middleware, applied in the order given, outside
// routing.
func Use(mw ...Middleware) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithTrustRequestID reuses a well-formed x-request-id sent by the client
// instead of generating one.
func WithTrustRequestID() ServerOption {
	return func(s *Server) {
		s.trustID = true
	}
}

// WithIDGenerator replaces the UUID request id generator.
func WithIDGenerator(gen IDGenerator) ServerOption {
	return func(s *Server) {
		s.idGen = gen
	}
}

// WithTracer sets a tracing hook started around each endpoint invocation.
func WithTracer(t SpanStarter) ServerOption {
	return func(s *Server) {
		s.tracer = t
	}
}

// NewServer builds the request handlers for every endpoint in reg.
func NewServer(reg *Registry, opts ...ServerOption) *Server {
	s := &Server{
		reg:       reg,
		logger:    slog.Default(),
		bodyLimit: DefaultBodyLimit,
		validator: NewValidator(),
		idGen:     defaultIDGenerator,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handlers = make(map[*Endpoint]http.Handler, len(reg.endpoints))
	for _, e := range reg.endpoints {
		s.handlers[e] = Chain(e.middleware...)(s.endpointHandler(e))
	}
	s.handler = recovery(s, Chain(s.middleware...)(http.HandlerFunc(s.dispatch)))
	return s
}

// Registry returns the registry being served.
func (s *Server) Registry() *Registry { return s.reg }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := requestID(r, s.trustID, s.idGen)
	info := &RequestInfo{
		ID:         id,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	}

	ctx := withRequestInfo(r.Context(), info)
	ctx = withRegistry(ctx, s.reg)
	ctx = withState(ctx, s.state)

	w.Header().Set(RequestIDHeader, id)
	s.handler.ServeHTTP(w, r.WithContext(ctx))
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	match, err := s.reg.router.Resolve(r.Method, r.URL.EscapedPath())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	if info, ok := RequestInfoFrom(r.Context()); ok {
		info.Template = match.Endpoint.Path()
		info.PathVars = match.Vars
		info.Endpoint = match.Endpoint
	}
	s.handlers[match.Endpoint].ServeHTTP(w, r)
}

func (s *Server) endpointHandler(e *Endpoint) http.Handler {
	limit := e.bodyLimit
	if limit <= 0 {
		limit = s.bodyLimit
	}
	opts := extractOptions{
		strict:      s.strict,
		strictQuery: e.strictQuery,
		bodyLimit:   limit,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var vars map[string]string
		if info, ok := RequestInfoFrom(ctx); ok {
			vars = info.PathVars
		}

		if s.tracer != nil {
			var end func()
			ctx, end = s.tracer.StartSpan(ctx, e.Identity(), map[string]string{
				"http.method":  e.method,
				"http.route":   e.Path(),
				"operation.id": e.operationID,
				"request.id":   GetRequestID(ctx),
			})
			defer end()
		}

		req, err := e.plan.extract(ctx, r, vars, opts)
		if err == nil {
			err = validateRequest(req, s.validator)
		}

		var resp *Response
		if err == nil {
			var out any
			out, err = invoke(ctx, e, req)
			if err == nil {
				resp, err = convertSuccess(out, e.status)
			}
		}

		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				s.logger.DebugContext(ctx, "request abandoned",
					"request_id", GetRequestID(ctx),
					"method", r.Method,
					"path", r.URL.Path,
				)
				return
			}
			s.writeError(w, r, err, e)
			return
		}

		if werr := writeResponse(w, resp, GetRequestID(ctx)); werr != nil {
			s.logger.WarnContext(ctx, "response write failed",
				"request_id", GetRequestID(ctx),
				"error", werr,
			)
		}
	})
}

// invoke calls the handler, turning a panic into an internal error.
func invoke(ctx context.Context, e *Endpoint, req any) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: stack()}
		}
	}()
	return e.invoke(ctx, req)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, e *Endpoint) {
	ctx := r.Context()
	id := GetRequestID(ctx)

	resp, he := convertError(err, ErrorContext{RequestID: id, Endpoint: e}, s.transform)
	status := resp.Status

	attrs := []any{
		"request_id", id,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
	}
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		s.logger.ErrorContext(ctx, "handler panicked", append(attrs, "panic", fmt.Sprint(pe.value), "stack", pe.stack)...)
	case status >= http.StatusInternalServerError:
		msg := err.Error()
		if he != nil {
			msg = he.Error()
		}
		s.logger.ErrorContext(ctx, "request failed", append(attrs, "error", msg)...)
	default:
		s.logger.DebugContext(ctx, "request rejected", append(attrs, "error", err.Error())...)
	}

	if werr := writeResponse(w, resp, id); werr != nil {
		s.logger.WarnContext(ctx, "response write failed", "request_id", id, "error", werr)
	}
}
