package apikit

import (
	"context"
	"reflect"
)

// Void is used as a type parameter when a request has no parameters/body
// or a response has no body (results in 204 No Content).
type Void struct{}

// Handler is the core typed handler signature. The framework owns
// serialization; handlers never see http.ResponseWriter or *http.Request.
type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// invoker is a type-erased Handler. req is always a *Req.
type invoker func(ctx context.Context, req any) (any, error)

func erase[Req, Resp any](h Handler[Req, Resp]) invoker {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := h(ctx, req.(*Req))
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		return resp, nil
	}
}

var voidType = reflect.TypeFor[Void]()
