package apikit

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DescriptorKind is the shape of a TypeDescriptor.
type DescriptorKind int

const (
	KindPrimitive DescriptorKind = iota + 1
	KindObject
	KindArray
	KindEnum
	KindReference
	KindMap
	KindAny
)

// TypeDescriptor is a structural schema for a Go type. Named types are kept
// once in a SchemaRegistry and pointed to by KindReference descriptors, so
// recursive types form a finite graph.
type TypeDescriptor struct {
	Kind        DescriptorKind
	Type        string // JSON type for primitives and enums
	Format      string
	Fields      []FieldDescriptor // KindObject
	Elem        *TypeDescriptor   // KindArray items, KindMap values
	Variants    []string          // KindEnum
	Ref         string            // KindReference
	Description string
	Constraints Constraints
}

// FieldDescriptor is one property of an object descriptor.
type FieldDescriptor struct {
	Name     string
	Type     *TypeDescriptor
	Required bool
}

// Constraints holds validation keywords declared through struct tags.
type Constraints struct {
	Minimum   *float64
	Maximum   *float64
	MinLength *int
	MaxLength *int
	MinItems  *int
	MaxItems  *int
	Pattern   string
}

// Enumerator is implemented by named types with a closed set of string
// values. EnumValues is called on the zero value.
type Enumerator interface {
	EnumValues() []string
}

// TypeNameCollisionError reports two distinct Go types that map to the same
// schema name with different shapes.
type TypeNameCollisionError struct {
	Name   string
	First  reflect.Type
	Second reflect.Type
}

func (e *TypeNameCollisionError) Error() string {
	return fmt.Sprintf("schema name %q used by distinct types %s and %s",
		e.Name, qualifiedName(e.First), qualifiedName(e.Second))
}

// SchemaRegistry builds TypeDescriptors and holds the definitions of named
// types. It is not safe for concurrent use.
type SchemaRegistry struct {
	defs   map[string]*TypeDescriptor
	names  map[reflect.Type]string
	owners map[string]reflect.Type
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		defs:   make(map[string]*TypeDescriptor),
		names:  make(map[reflect.Type]string),
		owners: make(map[string]reflect.Type),
	}
}

// Describe returns the descriptor for t. Named structs and enums are added
// to the registry and returned as references.
func (s *SchemaRegistry) Describe(t reflect.Type) (*TypeDescriptor, error) {
	return s.describe(t)
}

// Definition returns the stored descriptor for a named type.
func (s *SchemaRegistry) Definition(name string) (*TypeDescriptor, bool) {
	d, ok := s.defs[name]
	return d, ok && d != nil
}

// Names returns the definition names in sorted order.
func (s *SchemaRegistry) Names() []string {
	names := make([]string, 0, len(s.defs))
	for n := range s.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Define stores d under name on behalf of owner. Defining a name twice is
// an error unless both definitions are identical.
func (s *SchemaRegistry) Define(name string, owner reflect.Type, d *TypeDescriptor) error {
	if existing, ok := s.defs[name]; ok {
		if existing != nil && reflect.DeepEqual(existing, d) {
			return nil
		}
		return &TypeNameCollisionError{Name: name, First: s.owners[name], Second: owner}
	}
	s.defs[name] = d
	s.owners[name] = owner
	return nil
}

// Resolve follows a reference descriptor to its definition. Non-reference
// descriptors are returned unchanged.
func (s *SchemaRegistry) Resolve(d *TypeDescriptor) *TypeDescriptor {
	if d != nil && d.Kind == KindReference {
		if def, ok := s.Definition(d.Ref); ok {
			return def
		}
	}
	return d
}

// CheckReferences verifies that every reference reachable from the
// definitions and from extra resolves to exactly one definition.
func (s *SchemaRegistry) CheckReferences(extra ...*TypeDescriptor) error {
	var walk func(d *TypeDescriptor) error
	walk = func(d *TypeDescriptor) error {
		if d == nil {
			return nil
		}
		switch d.Kind {
		case KindReference:
			if _, ok := s.Definition(d.Ref); !ok {
				return fmt.Errorf("schema reference %q has no definition", d.Ref)
			}
		case KindObject:
			for _, f := range d.Fields {
				if err := walk(f.Type); err != nil {
					return err
				}
			}
		case KindArray, KindMap:
			return walk(d.Elem)
		}
		return nil
	}

	for _, name := range s.Names() {
		if s.defs[name] == nil {
			return fmt.Errorf("schema %q was never completed", name)
		}
		if err := walk(s.defs[name]); err != nil {
			return err
		}
	}
	for _, d := range extra {
		if err := walk(d); err != nil {
			return err
		}
	}
	return nil
}

var (
	timeType      = reflect.TypeFor[time.Time]()
	durationType  = reflect.TypeFor[time.Duration]()
	uuidType      = reflect.TypeFor[uuid.UUID]()
	rawJSONType   = reflect.TypeFor[json.RawMessage]()
	streamType    = reflect.TypeFor[Stream]()
	enumerator    = reflect.TypeFor[Enumerator]()
	textUnmarshal = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func (s *SchemaRegistry) describe(t reflect.Type) (*TypeDescriptor, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "string", Format: "date-time"}, nil
	case durationType:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "string", Format: "duration"}, nil
	case uuidType:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "string", Format: "uuid"}, nil
	case rawJSONType:
		return &TypeDescriptor{Kind: KindAny}, nil
	case streamType:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "string", Format: "binary"}, nil
	case voidType:
		return &TypeDescriptor{Kind: KindObject, Type: "object"}, nil
	}

	if isEnum(t) || (t.Kind() == reflect.Struct && t.Name() != "") {
		return s.named(t)
	}

	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "string"}, nil
	case reflect.Bool:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "boolean"}, nil
	case reflect.Int, reflect.Int64:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "integer", Format: "int64"}, nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "integer", Format: t.Kind().String()}, nil
	case reflect.Uint, reflect.Uint64, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		format := t.Kind().String()
		if t.Kind() == reflect.Uint {
			format = "uint64"
		}
		zero := 0.0
		return &TypeDescriptor{
			Kind:        KindPrimitive,
			Type:        "integer",
			Format:      format,
			Constraints: Constraints{Minimum: &zero},
		}, nil
	case reflect.Float32:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "number", Format: "float"}, nil
	case reflect.Float64:
		return &TypeDescriptor{Kind: KindPrimitive, Type: "number", Format: "double"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &TypeDescriptor{Kind: KindPrimitive, Type: "string", Format: "byte"}, nil
		}
		elem, err := s.describe(t.Elem())
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{Kind: KindArray, Type: "array", Elem: elem}, nil
	case reflect.Map:
		k := t.Key().Kind()
		if k != reflect.String && !isIntegerKind(k) && !t.Key().Implements(textUnmarshal) {
			return nil, fmt.Errorf("unsupported map key type %s", t.Key())
		}
		elem, err := s.describe(t.Elem())
		if err != nil {
			return nil, err
		}
		return &TypeDescriptor{Kind: KindMap, Type: "object", Elem: elem}, nil
	case reflect.Struct:
		return s.object(t)
	case reflect.Interface:
		return &TypeDescriptor{Kind: KindAny}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
}

// named returns a reference to the definition of t, building it on first use.
// The name is reserved before the fields are walked so recursive types
// resolve to a reference instead of expanding forever.
func (s *SchemaRegistry) named(t reflect.Type) (*TypeDescriptor, error) {
	if name, ok := s.names[t]; ok {
		return &TypeDescriptor{Kind: KindReference, Ref: name}, nil
	}

	name := schemaName(t)
	owner, taken := s.owners[name]
	s.names[t] = name
	if !taken {
		s.owners[name] = t
		s.defs[name] = nil
	}

	var (
		d   *TypeDescriptor
		err error
	)
	if isEnum(t) {
		d = enumDescriptor(t)
	} else {
		d, err = s.object(t)
	}
	if err != nil {
		delete(s.names, t)
		return nil, err
	}

	if taken {
		if existing := s.defs[name]; existing == nil || !reflect.DeepEqual(existing, d) {
			delete(s.names, t)
			return nil, &TypeNameCollisionError{Name: name, First: owner, Second: t}
		}
		return &TypeDescriptor{Kind: KindReference, Ref: name}, nil
	}

	s.defs[name] = d
	return &TypeDescriptor{Kind: KindReference, Ref: name}, nil
}

func (s *SchemaRegistry) object(t reflect.Type) (*TypeDescriptor, error) {
	d := &TypeDescriptor{Kind: KindObject, Type: "object"}
	if err := s.fields(t, d); err != nil {
		return nil, err
	}
	return d, nil
}

// fields appends the JSON-visible fields of struct t to d, flattening
// untagged embedded structs the way encoding/json does.
func (s *SchemaRegistry) fields(t reflect.Type, d *TypeDescriptor) error {
	for i := range t.NumField() {
		f := t.Field(i)

		if f.Anonymous && f.Tag.Get("json") == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := s.fields(ft, d); err != nil {
					return err
				}
				continue
			}
		}

		if !f.IsExported() || isParamField(f) {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}

		name := jsonFieldName(f)
		if name == "-" {
			continue
		}

		fd, err := s.describe(f.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		if doc := f.Tag.Get("doc"); doc != "" {
			fd.Description = doc
		}
		applyConstraintTags(fd, f)

		d.Fields = append(d.Fields, FieldDescriptor{
			Name:     name,
			Type:     fd,
			Required: fieldRequired(f),
		})
	}
	return nil
}

// fieldRequired reports whether a body field must be present. An explicit
// required tag wins; otherwise non-pointer scalar and struct fields without
// omitempty are required.
func fieldRequired(f reflect.StructField) bool {
	if v := f.Tag.Get("required"); v != "" {
		return v == "true"
	}
	//exhaustive:ignore
	switch f.Type.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return false
	}
	_, opts := tagOptions(f.Tag.Get("json"))
	return !tagContains(opts, "omitempty") && !tagContains(opts, "omitzero")
}

func isEnum(t reflect.Type) bool {
	return t.Name() != "" && t.Kind() != reflect.Struct && t.Implements(enumerator)
}

func enumDescriptor(t reflect.Type) *TypeDescriptor {
	values := reflect.Zero(t).Interface().(Enumerator).EnumValues()
	typ := "string"
	if isIntegerKind(t.Kind()) {
		typ = "integer"
	}
	return &TypeDescriptor{Kind: KindEnum, Type: typ, Variants: slices.Clone(values)}
}

// enumValues returns the allowed values for t, if t is an enum type.
func enumValues(t reflect.Type) ([]string, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !isEnum(t) {
		return nil, false
	}
	return reflect.Zero(t).Interface().(Enumerator).EnumValues(), true
}

// schemaName derives a component name from a Go type. Generic instantiations
// like Page[example.com/app.Item] become Page_Item; nested arguments are
// flattened in order, so Page[map[string]Item] becomes Page_map_string_Item.
func schemaName(t reflect.Type) string {
	name := t.Name()
	if !strings.ContainsRune(name, '[') {
		return name
	}

	var (
		parts []string
		word  strings.Builder
	)
	flush := func() {
		w := word.String()
		word.Reset()
		if i := strings.LastIndexByte(w, '.'); i >= 0 {
			w = w[i+1:]
		}
		w = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				return r
			}
			return -1
		}, w)
		if w != "" {
			parts = append(parts, w)
		}
	}
	for _, r := range name {
		switch r {
		case '[', ']', ',', ' ', '*':
			flush()
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return strings.Join(parts, "_")
}

func qualifiedName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func isIntegerKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// isParamField reports whether a struct field has parameter binding tags.
func isParamField(f reflect.StructField) bool {
	for _, tag := range paramTags {
		if f.Tag.Get(tag) != "" {
			return true
		}
	}
	return false
}
