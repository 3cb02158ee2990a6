package apikit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// Middleware is the standard middleware signature compatible with the entire
// Go middleware ecosystem.
type Middleware func(next http.Handler) http.Handler

// Chain composes middleware so the first one given is the outermost.
func Chain(mw ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// panicError carries a recovered panic value to the error path.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func stack() string {
	return string(debug.Stack())
}

// Recovery returns middleware that recovers from panics and responds with a
// 500 error envelope when nothing was written yet.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					id := GetRequestID(r.Context())
					logger.ErrorContext(r.Context(), "panic recovered",
						"panic", fmt.Sprint(v),
						"stack", stack(),
						"request_id", id,
						"method", r.Method,
						"path", r.URL.Path,
					)
					if !rec.wroteHeader {
						//nolint:errcheck // best-effort after a panic
						writeResponse(w, errorEnvelope(Internal(fmt.Sprint(v)), id), id)
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func recovery(s *Server, next http.Handler) http.Handler {
	return Recovery(s.logger)(next)
}

// Timeout returns middleware that adds a timeout to the request context.
// Extraction stops once the deadline passes, and a handler returning the
// context error is answered with a 503 Timeout envelope.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
