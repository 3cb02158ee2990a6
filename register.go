package apikit

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrFrozen is returned when registering on an API whose Registry was built.
var ErrFrozen = errors.New("api registry is frozen")

// Registrar is the interface accepted by the registration functions.
// Both *API and *Group implement it.
type Registrar interface {
	Register(e *Endpoint) error
}

// Info is the API metadata published in the document.
type Info struct {
	Title       string
	Version     string
	Description string
	Servers     []ServerInfo
	Tags        []TagInfo
}

// ServerInfo is an entry of the document's servers list.
type ServerInfo struct {
	URL         string
	Description string
}

// TagInfo documents a tag used by operations.
type TagInfo struct {
	Name        string
	Description string
}

// API collects endpoints. It is not safe for concurrent use; build it from
// one goroutine, then call Registry.
type API struct {
	info      Info
	endpoints []*Endpoint
	router    *Router
	registry  *Registry
}

// Option configures an API.
type Option func(*API)

// WithTitle sets the API title in the document.
func WithTitle(title string) Option {
	return func(a *API) {
		a.info.Title = title
	}
}

// WithVersion sets the API version in the document.
func WithVersion(version string) Option {
	return func(a *API) {
		a.info.Version = version
	}
}

// WithAPIDescription sets the document's info description.
func WithAPIDescription(desc string) Option {
	return func(a *API) {
		a.info.Description = desc
	}
}

// WithServerURL adds an entry to the document's servers list.
func WithServerURL(url, desc string) Option {
	return func(a *API) {
		a.info.Servers = append(a.info.Servers, ServerInfo{URL: url, Description: desc})
	}
}

// WithTagDescription documents a tag.
func WithTagDescription(name, desc string) Option {
	return func(a *API) {
		a.info.Tags = append(a.info.Tags, TagInfo{Name: name, Description: desc})
	}
}

// New returns an empty API.
func New(opts ...Option) *API {
	a := &API{
		info: Info{
			Title:   "API",
			Version: "0.0.0",
		},
		router: NewRouter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register validates e and adds it to the API. It fails on malformed
// templates, invalid request bindings and route conflicts.
func (a *API) Register(e *Endpoint) error {
	if a.registry != nil {
		return ErrFrozen
	}
	if e == nil {
		return errors.New("register: nil endpoint")
	}
	if e.plan != nil {
		return fmt.Errorf("register %s: endpoint already registered", e.Identity())
	}
	if !validMethod(e.method) {
		return &BindingError{Endpoint: e.method + " " + e.pattern, Reason: fmt.Sprintf("unsupported HTTP method %q", e.method)}
	}

	t, err := ParseTemplate(e.pattern)
	if err != nil {
		return err
	}
	e.template = t

	plan, err := buildPlan(e)
	if err != nil {
		return err
	}
	if err := a.router.Register(e); err != nil {
		return err
	}

	e.plan = plan
	a.endpoints = append(a.endpoints, e)
	return nil
}

// Group returns a Registrar that prefixes patterns and adds tags and
// middleware to every endpoint registered through it.
func (a *API) Group(prefix string, opts ...GroupOption) *Group {
	return newGroup(a, prefix, opts)
}

// Endpoints returns the endpoints registered so far, in registration order.
func (a *API) Endpoints() []*Endpoint {
	return slices.Clone(a.endpoints)
}

// Registry freezes the API and returns the immutable registry. It fails on
// duplicate operation ids and on schema problems found while generating the
// document. Later calls return the same registry.
func (a *API) Registry() (*Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}

	endpoints := slices.Clone(a.endpoints)
	slices.SortFunc(endpoints, func(x, y *Endpoint) int {
		if c := strings.Compare(x.Path(), y.Path()); c != 0 {
			return c
		}
		return strings.Compare(x.method, y.method)
	})

	if err := assignOperationIDs(endpoints); err != nil {
		return nil, err
	}

	reg := &Registry{
		info:      a.info,
		endpoints: endpoints,
		router:    a.router,
	}
	doc, err := buildDocument(reg, a.info)
	if err != nil {
		return nil, err
	}

	reg.doc = doc
	a.registry = reg
	return reg, nil
}

// RegisterAll registers every endpoint on a new API and returns its
// registry. All registration errors are reported together.
func RegisterAll(endpoints []*Endpoint, opts ...Option) (*Registry, error) {
	a := New(opts...)
	var errs []error
	for _, e := range endpoints {
		if err := a.Register(e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return a.Registry()
}

// Registry is the frozen set of endpoints with its router.
type Registry struct {
	info      Info
	endpoints []*Endpoint
	router    *Router
	doc       *Document
}

// Info returns the API metadata.
func (r *Registry) Info() Info { return r.info }

// Endpoints returns all endpoints sorted by path then method.
func (r *Registry) Endpoints() []*Endpoint { return slices.Clone(r.endpoints) }

// Lookup resolves a method and escaped path to an endpoint.
func (r *Registry) Lookup(method, path string) (*RouteMatch, error) {
	return r.router.Resolve(method, path)
}

// Document returns the OpenAPI document, titled and versioned from the API
// options.
func (r *Registry) Document() *Document {
	return r.doc
}

// assignOperationIDs resolves every endpoint's operation id. Explicit ids
// are claimed first, then handler names in endpoint order; an endpoint whose
// handler name is missing or taken falls back to a generated id.
func assignOperationIDs(endpoints []*Endpoint) error {
	seen := make(map[string]*Endpoint, len(endpoints))
	ids := make([]string, len(endpoints))
	claim := func(i int, id string) error {
		e := endpoints[i]
		if prev := seen[id]; prev != nil {
			return fmt.Errorf("duplicate operation id %q: %s and %s", id, prev.Identity(), e.Identity())
		}
		seen[id] = e
		ids[i] = id
		return nil
	}

	for i, e := range endpoints {
		if e.operationID != "" {
			if err := claim(i, e.operationID); err != nil {
				return err
			}
		}
	}
	for i, e := range endpoints {
		if ids[i] == "" && e.funcName != "" && seen[e.funcName] == nil {
			_ = claim(i, e.funcName)
		}
	}
	for i, e := range endpoints {
		if ids[i] == "" {
			if err := claim(i, generateOperationID(e.method, e.template)); err != nil {
				return err
			}
		}
	}

	for i, e := range endpoints {
		e.operationID = ids[i]
	}
	return nil
}

func validMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// Handle registers h for method and pattern.
func Handle[Req, Resp any](reg Registrar, method, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return reg.Register(NewEndpoint(method, pattern, h, opts...))
}

// Get registers a GET handler.
func Get[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return Handle(reg, http.MethodGet, pattern, h, opts...)
}

// Post registers a POST handler.
func Post[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return Handle(reg, http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT handler.
func Put[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return Handle(reg, http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH handler.
func Patch[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return Handle(reg, http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE handler.
func Delete[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) error {
	return Handle(reg, http.MethodDelete, pattern, h, opts...)
}
