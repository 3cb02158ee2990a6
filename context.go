package apikit

import (
	"context"
	"net/http"
)

type contextKey[T any] struct{}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](r *http.Request, val T) *http.Request {
	ctx := context.WithValue(r.Context(), contextKey[T]{}, val)
	return r.WithContext(ctx)
}

// GetValue retrieves a typed value from the request context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}

// RequestInfo describes the request being served. It is created by the
// server for each request and owned by that request.
type RequestInfo struct {
	ID         string
	Method     string
	Path       string
	Template   string
	PathVars   map[string]string
	RemoteAddr string
	Endpoint   *Endpoint
}

type requestInfoKey struct{}

type stateKey struct{}

func withRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the RequestInfo of the request served under ctx.
func RequestInfoFrom(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok
}

// GetRequestID returns the correlation id assigned to the request, or "".
func GetRequestID(ctx context.Context) string {
	if info, ok := RequestInfoFrom(ctx); ok {
		return info.ID
	}
	return ""
}

type registryKey struct{}

func withRegistry(ctx context.Context, reg *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, reg)
}

func registryFrom(ctx context.Context) (*Registry, bool) {
	reg, ok := ctx.Value(registryKey{}).(*Registry)
	return reg, ok && reg != nil
}

func withState(ctx context.Context, state any) context.Context {
	if state == nil {
		return ctx
	}
	return context.WithValue(ctx, stateKey{}, state)
}

// State returns the server-wide state registered with WithState, asserted to T.
func State[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(stateKey{}).(T)
	return val, ok
}
