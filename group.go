package apikit

import (
	"slices"
	"strings"
)

// Group is a collection of routes under a shared prefix with shared middleware and tags.
type Group struct {
	parent     Registrar
	prefix     string
	middleware []Middleware
	tags       []string
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupTags adds default tags to all routes registered on the group.
func WithGroupTags(tags ...string) GroupOption {
	return func(g *Group) {
		g.tags = append(g.tags, tags...)
	}
}

// WithGroupMiddleware adds middleware to the group.
func WithGroupMiddleware(mw ...Middleware) GroupOption {
	return func(g *Group) {
		g.middleware = append(g.middleware, mw...)
	}
}

func newGroup(parent Registrar, prefix string, opts []GroupOption) *Group {
	g := &Group{
		parent: parent,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Group creates a nested group under g.
func (g *Group) Group(prefix string, opts ...GroupOption) *Group {
	return newGroup(g, prefix, opts)
}

// Register implements Registrar. Group middleware runs outside route
// middleware; outer groups run outside inner ones.
func (g *Group) Register(e *Endpoint) error {
	if e == nil {
		return g.parent.Register(nil)
	}
	e.pattern = g.prefix + e.pattern
	e.tags = append(slices.Clone(g.tags), e.tags...)
	e.middleware = append(slices.Clone(g.middleware), e.middleware...)
	return g.parent.Register(e)
}
