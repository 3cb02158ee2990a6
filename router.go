package apikit

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// ErrNoMatch is returned by Router.Resolve when no template matches the path
// under any method.
var ErrNoMatch = errors.New("no route matches path")

// MethodNotAllowedError is returned by Router.Resolve when the path matches a
// template registered under other methods only.
type MethodNotAllowedError struct {
	Method  string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s not allowed (allowed: %s)", e.Method, strings.Join(e.Allowed, ", "))
}

// ConflictError reports two endpoints that the router cannot tell apart.
type ConflictError struct {
	Method   string
	Template string
	Existing string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s conflicts with %s %s: %s", e.Method, e.Template, e.Method, e.Existing, e.Reason)
}

// RouteMatch is the result of resolving a request path.
type RouteMatch struct {
	Endpoint *Endpoint
	Vars     map[string]string
}

// Router resolves (method, path) pairs to endpoints. It keeps one segment
// trie per method. Register is not safe for concurrent use; Resolve is, once
// registration has finished.
type Router struct {
	trees map[string]*node
}

type node struct {
	literals map[string]*node

	variable      *node
	variableName  string
	variableOwner string

	wildcard *wildcardLeaf

	endpoint *Endpoint
}

type wildcardLeaf struct {
	name     string
	endpoint *Endpoint
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{trees: make(map[string]*node)}
}

// Register inserts the endpoint, checking for conflicts with templates already
// registered under the same method.
func (rt *Router) Register(e *Endpoint) error {
	n := rt.trees[e.method]
	if n == nil {
		n = &node{}
		rt.trees[e.method] = n
	}

	tmpl := e.template.String()
	conflict := func(existing, format string, args ...any) error {
		return &ConflictError{
			Method:   e.method,
			Template: tmpl,
			Existing: existing,
			Reason:   fmt.Sprintf(format, args...),
		}
	}

	for _, seg := range e.template.segments {
		switch seg.Kind {
		case SegmentLiteral:
			if n.literals == nil {
				n.literals = make(map[string]*node)
			}
			child := n.literals[seg.Value]
			if child == nil {
				child = &node{}
				n.literals[seg.Value] = child
			}
			n = child

		case SegmentVariable:
			if n.variable == nil {
				n.variable = &node{}
				n.variableName = seg.Value
				n.variableOwner = tmpl
			} else if n.variableName != seg.Value {
				return conflict(n.variableOwner,
					"variable {%s} and {%s} occupy the same position", seg.Value, n.variableName)
			}
			n = n.variable

		case SegmentWildcard:
			if w := n.wildcard; w != nil {
				existing := w.endpoint.template.String()
				if w.name != seg.Value {
					return conflict(existing,
						"wildcards {%s...} and {%s...} occupy the same position", seg.Value, w.name)
				}
				return conflict(existing, "duplicate endpoint")
			}
			n.wildcard = &wildcardLeaf{name: seg.Value, endpoint: e}
			return nil
		}
	}

	if n.endpoint != nil {
		return conflict(n.endpoint.template.String(), "duplicate endpoint")
	}
	n.endpoint = e
	return nil
}

// Resolve matches a request. path is the escaped request path
// (url.URL.EscapedPath); segments are percent-decoded before matching.
// It returns ErrNoMatch, a *MethodNotAllowedError, or a 400 *HTTPError for
// an undecodable path.
func (rt *Router) Resolve(method, path string) (*RouteMatch, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	if tree := rt.trees[method]; tree != nil {
		var b bindings
		if e := tree.match(segs, &b); e != nil {
			return &RouteMatch{Endpoint: e, Vars: b.vars()}, nil
		}
	}

	var allowed []string
	for m, tree := range rt.trees {
		if m == method {
			continue
		}
		var b bindings
		if tree.match(segs, &b) != nil {
			allowed = append(allowed, m)
		}
	}
	if len(allowed) > 0 {
		slices.Sort(allowed)
		return nil, &MethodNotAllowedError{Method: method, Allowed: allowed}
	}
	return nil, ErrNoMatch
}

type binding struct {
	name  string
	value string
}

type bindings []binding

func (b bindings) vars() map[string]string {
	m := make(map[string]string, len(b))
	for _, kv := range b {
		m[kv.name] = kv.value
	}
	return m
}

// match walks the trie preferring literal, then variable, then wildcard
// children, backtracking when a branch dead-ends.
func (n *node) match(segs []string, b *bindings) *Endpoint {
	if len(segs) == 0 {
		if n.endpoint != nil {
			return n.endpoint
		}
		if n.wildcard != nil {
			*b = append(*b, binding{name: n.wildcard.name})
			return n.wildcard.endpoint
		}
		return nil
	}

	head := segs[0]

	if child := n.literals[head]; child != nil {
		if e := child.match(segs[1:], b); e != nil {
			return e
		}
	}

	if n.variable != nil {
		mark := len(*b)
		*b = append(*b, binding{name: n.variableName, value: head})
		if e := n.variable.match(segs[1:], b); e != nil {
			return e
		}
		*b = (*b)[:mark]
	}

	if n.wildcard != nil {
		*b = append(*b, binding{name: n.wildcard.name, value: strings.Join(segs, "/")})
		return n.wildcard.endpoint
	}

	return nil
}

// splitPath splits an escaped path into decoded, non-empty segments.
func splitPath(path string) ([]string, error) {
	var segs []string
	for part := range strings.SplitSeq(path, "/") {
		if part == "" {
			continue
		}
		dec, err := url.PathUnescape(part)
		if err != nil {
			return nil, &HTTPError{
				Status:    http.StatusBadRequest,
				ErrorCode: CodeInvalidPath,
				Message:   fmt.Sprintf("invalid path segment %q", part),
				cause:     err,
			}
		}
		segs = append(segs, dec)
	}
	return segs, nil
}
