package apikit

import (
	"fmt"
	"strings"
)

// SegmentKind classifies a path template segment.
type SegmentKind int

const (
	SegmentLiteral  SegmentKind = iota + 1 // fixed text
	SegmentVariable                        // {name}
	SegmentWildcard                        // {name...}, last segment only
)

// Segment is a single element of a PathTemplate. Value holds the literal text
// or the variable name.
type Segment struct {
	Kind  SegmentKind
	Value string
}

// PathTemplate is a parsed URL path pattern such as "/widgets/{id}" or
// "/files/{path...}".
type PathTemplate struct {
	segments []Segment
}

// TemplateError reports a malformed path template.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("path template %q: %s", e.Template, e.Reason)
}

// ParseTemplate parses and validates a path template. A trailing slash is
// dropped, so "/widgets/" and "/widgets" are the same template.
func ParseTemplate(raw string) (PathTemplate, error) {
	fail := func(format string, args ...any) (PathTemplate, error) {
		return PathTemplate{}, &TemplateError{Template: raw, Reason: fmt.Sprintf(format, args...)}
	}

	if raw == "" {
		return fail("empty template")
	}
	if !strings.HasPrefix(raw, "/") {
		return fail("must begin with '/'")
	}

	trimmed := strings.TrimPrefix(raw, "/")
	if len(trimmed) > 0 && strings.HasSuffix(trimmed, "/") {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	if trimmed == "" {
		return PathTemplate{}, nil
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]Segment, 0, len(parts))
	seen := make(map[string]bool)

	for i, part := range parts {
		if part == "" {
			return fail("empty segment at position %d", i+1)
		}

		open := strings.IndexByte(part, '{')
		closing := strings.IndexByte(part, '}')

		if open < 0 && closing < 0 {
			segments = append(segments, Segment{Kind: SegmentLiteral, Value: part})
			continue
		}

		switch {
		case open < 0:
			return fail("unmatched '}' in segment %q", part)
		case closing < 0:
			return fail("unterminated variable in segment %q", part)
		case open != 0 || closing != len(part)-1:
			return fail("variable must span the whole segment, got %q", part)
		}

		name := part[1 : len(part)-1]
		kind := SegmentVariable
		if n, ok := strings.CutSuffix(name, "..."); ok {
			name = n
			kind = SegmentWildcard
		}

		if !validVariableName(name) {
			return fail("invalid variable name %q", name)
		}
		if seen[name] {
			return fail("variable %q appears more than once", name)
		}
		seen[name] = true

		if kind == SegmentWildcard && i != len(parts)-1 {
			return fail("wildcard {%s...} must be the last segment", name)
		}

		segments = append(segments, Segment{Kind: kind, Value: name})
	}

	return PathTemplate{segments: segments}, nil
}

// validVariableName reports whether s is a non-empty identifier made of
// letters, digits and underscores, not starting with a digit.
func validVariableName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Segments returns a copy of the template's segments.
func (t PathTemplate) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Variables returns the variable names in declaration order, including the
// trailing wildcard if any.
func (t PathTemplate) Variables() []string {
	var vars []string
	for _, s := range t.segments {
		if s.Kind != SegmentLiteral {
			vars = append(vars, s.Value)
		}
	}
	return vars
}

// Wildcard returns the name of the trailing wildcard variable, if present.
func (t PathTemplate) Wildcard() (string, bool) {
	if n := len(t.segments); n > 0 && t.segments[n-1].Kind == SegmentWildcard {
		return t.segments[n-1].Value, true
	}
	return "", false
}

// String returns the normalized template.
func (t PathTemplate) String() string {
	return t.render(true)
}

// OpenAPIPath returns the template in OpenAPI path syntax, where a wildcard
// is written like any other parameter.
func (t PathTemplate) OpenAPIPath() string {
	return t.render(false)
}

// shape returns the template with every parameter name erased. Two
// templates with the same shape describe the same OpenAPI path.
func (t PathTemplate) shape() string {
	var b strings.Builder
	for _, s := range t.segments {
		b.WriteByte('/')
		if s.Kind == SegmentLiteral {
			b.WriteString(s.Value)
		} else {
			b.WriteString("{}")
		}
	}
	return b.String()
}

func (t PathTemplate) render(wildcardSuffix bool) string {
	if len(t.segments) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range t.segments {
		b.WriteByte('/')
		switch s.Kind {
		case SegmentLiteral:
			b.WriteString(s.Value)
		case SegmentVariable:
			b.WriteString("{" + s.Value + "}")
		case SegmentWildcard:
			if wildcardSuffix {
				b.WriteString("{" + s.Value + "...}")
			} else {
				b.WriteString("{" + s.Value + "}")
			}
		}
	}
	return b.String()
}
