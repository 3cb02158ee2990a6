// Package apikit turns typed Go handler functions into an HTTP API with an
// OpenAPI 3.1 description. Handler types are the source of truth: request
// parameters, bodies and responses are Go types, and the framework derives
// extraction, response conversion and the document from them.
//
// The core handler signature removes http.ResponseWriter and *http.Request:
//
//	type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)
//
// Endpoints are registered on an API, which is frozen into a Registry and
// served by a Server:
//
//	a := apikit.New(apikit.WithTitle("Widgets"), apikit.WithVersion("1.0.0"))
//	err := apikit.Get(a, "/widgets/{id}", getWidget)
//	reg, err := a.Registry()
//	srv := apikit.NewServer(reg, apikit.Use(apikit.Logger(logger)))
//
// Path templates use {name} variables and a trailing {name...} wildcard.
// Registration fails on malformed templates, overlapping routes and request
// types that do not bind to the template.
//
// Request types use struct tags for parameters and a Body field for the
// request body:
//
//	type UpdateWidget struct {
//	    ID    string `path:"id"`
//	    Force bool   `query:"force"`
//	    Body  struct {
//	        Name string `json:"name" maxLength:"64"`
//	    }
//	}
//
// Errors render as {"message", "error_code", "request_id"} unless they
// implement ErrorResponder; error_code is omitted when the error has none.
// Every response carries x-request-id.
package apikit
