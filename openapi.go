package apikit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

const (
	schemaRefPrefix   = "#/components/schemas/"
	responseRefPrefix = "#/components/responses/"
	errorComponent    = "Error"
)

// Document is an OpenAPI 3.1 document.
type Document struct {
	OpenAPI    string              `json:"openapi"`
	Info       DocumentInfo        `json:"info"`
	Servers    []DocumentServer    `json:"servers,omitempty"`
	Tags       []DocumentTag       `json:"tags,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
}

// DocumentInfo holds API metadata.
type DocumentInfo struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// DocumentServer is an entry of the servers list.
type DocumentServer struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// DocumentTag documents an operation tag.
type DocumentTag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Components holds the reusable schemas and responses.
type Components struct {
	Schemas   map[string]*JSONSchema `json:"schemas,omitempty"`
	Responses map[string]ResponseObj `json:"responses,omitempty"`
}

// PathItem maps lower-case HTTP methods to operations.
type PathItem map[string]*Operation

// Operation describes a single API operation on a path.
type Operation struct {
	OperationID string         `json:"operationId"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
	RequestBody *RequestBody   `json:"requestBody,omitempty"`
	Responses   OperationResp  `json:"responses"`
	Deprecated  bool           `json:"deprecated,omitempty"`
	Extensions  map[string]any `json:"-"`
}

// MarshalJSON inlines the x- extensions next to the standard fields.
func (o Operation) MarshalJSON() ([]byte, error) {
	type plain Operation
	b, err := json.Marshal(plain(o))
	if err != nil || len(o.Extensions) == 0 {
		return b, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range o.Extensions {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", k, err)
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// Parameter describes a single operation parameter.
type Parameter struct {
	Name        string      `json:"name"`
	In          string      `json:"in"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Schema      *JSONSchema `json:"schema"`
}

// RequestBody describes the request body.
type RequestBody struct {
	Required bool                `json:"required"`
	Content  map[string]MediaObj `json:"content"`
}

// MediaObj is a media type object with an optional schema.
type MediaObj struct {
	Schema *JSONSchema `json:"schema,omitempty"`
}

// OperationResp maps HTTP status codes or ranges to response objects.
type OperationResp map[string]ResponseObj

// ResponseObj describes a single response, or references a shared one.
type ResponseObj struct {
	Ref         string              `json:"$ref,omitempty"`
	Description string              `json:"description,omitempty"`
	Content     map[string]MediaObj `json:"content,omitempty"`
}

// JSONSchema is the rendered form of a TypeDescriptor.
type JSONSchema struct {
	Ref                  string                 `json:"$ref,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Format               string                 `json:"format,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	MinItems             *int                   `json:"minItems,omitempty"`
	MaxItems             *int                   `json:"maxItems,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
}

// GenerateDocument builds the OpenAPI document for reg. It is a pure
// function of the registry: repeated calls serialize identically.
func GenerateDocument(reg *Registry, title, version string) (*Document, error) {
	info := reg.info
	info.Title = title
	info.Version = version
	return buildDocument(reg, info)
}

type docBuilder struct {
	schemas      *SchemaRegistry
	defaultError bool
}

func buildDocument(reg *Registry, info Info) (*Document, error) {
	b := &docBuilder{schemas: NewSchemaRegistry()}

	doc := &Document{
		OpenAPI: "3.1.0",
		Info: DocumentInfo{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		},
		Paths: make(map[string]PathItem),
	}
	for _, s := range info.Servers {
		doc.Servers = append(doc.Servers, DocumentServer(s))
	}
	for _, t := range info.Tags {
		doc.Tags = append(doc.Tags, DocumentTag(t))
	}

	type shapeOwner struct{ path, identity string }
	shapes := make(map[string]shapeOwner)

	for _, e := range reg.endpoints {
		if e.hidden {
			continue
		}
		op, err := b.operation(e)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", e.Identity(), err)
		}
		path := e.template.OpenAPIPath()
		if first, ok := shapes[e.template.shape()]; !ok {
			shapes[e.template.shape()] = shapeOwner{path: path, identity: e.Identity()}
		} else if first.path != path {
			return nil, fmt.Errorf("document %s: path %s differs from %s (%s) only in parameter names",
				e.Identity(), path, first.path, first.identity)
		}
		if doc.Paths[path] == nil {
			doc.Paths[path] = make(PathItem)
		}
		method := strings.ToLower(e.method)
		if prev, ok := doc.Paths[path][method]; ok {
			return nil, fmt.Errorf("document %s: path %s already describes operation %s", e.Identity(), path, prev.OperationID)
		}
		doc.Paths[path][method] = op
	}

	if b.defaultError {
		if err := b.defineError(); err != nil {
			return nil, err
		}
		doc.Components.Responses = map[string]ResponseObj{
			errorComponent: {
				Description: "Error",
				Content: map[string]MediaObj{
					ContentTypeJSON: {Schema: &JSONSchema{Ref: schemaRefPrefix + errorComponent}},
				},
			},
		}
	}

	if err := b.schemas.CheckReferences(); err != nil {
		return nil, err
	}
	if names := b.schemas.Names(); len(names) > 0 {
		doc.Components.Schemas = make(map[string]*JSONSchema, len(names))
		for _, name := range names {
			def, _ := b.schemas.Definition(name)
			doc.Components.Schemas[name] = toJSONSchema(def)
		}
	}

	return doc, nil
}

// defineError adds the default error envelope schema under the name Error.
func (b *docBuilder) defineError() error {
	t := reflect.TypeFor[ErrorEnvelope]()
	d, err := b.schemas.object(t)
	if err != nil {
		return err
	}
	err = b.schemas.Define(errorComponent, t, d)
	var ce *TypeNameCollisionError
	if errors.As(err, &ce) {
		return fmt.Errorf("schema name %q is reserved for the default error envelope; rename %s or document errors with WithErrorType: %w",
			errorComponent, qualifiedName(ce.First), err)
	}
	return err
}

func (b *docBuilder) operation(e *Endpoint) (*Operation, error) {
	op := &Operation{
		OperationID: e.operationID,
		Summary:     e.summary,
		Description: e.desc,
		Tags:        e.tags,
		Deprecated:  e.deprecated,
		Responses:   make(OperationResp),
	}

	for k, v := range e.extensions {
		if !strings.HasPrefix(k, "x-") {
			return nil, fmt.Errorf("extension %q must start with \"x-\"", k)
		}
		if op.Extensions == nil {
			op.Extensions = make(map[string]any, len(e.extensions))
		}
		op.Extensions[k] = v
	}

	plan := e.plan
	for _, pf := range plan.params {
		d, err := b.schemas.Describe(pf.typ)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", pf.name, err)
		}
		applyConstraintTags(d, plan.typ.Field(pf.index))
		op.Parameters = append(op.Parameters, Parameter{
			Name:        pf.name,
			In:          string(pf.in),
			Description: pf.doc,
			Required:    pf.required,
			Schema:      toJSONSchema(d),
		})
	}

	if body := plan.body; body != nil {
		var schema *JSONSchema
		if body.contentType == ContentTypeOctetStream {
			schema = &JSONSchema{Type: "string", Format: "binary"}
		} else {
			d, err := b.schemas.Describe(body.typ)
			if err != nil {
				return nil, fmt.Errorf("request body: %w", err)
			}
			schema = toJSONSchema(d)
		}
		op.RequestBody = &RequestBody{
			Required: body.required,
			Content:  map[string]MediaObj{body.contentType: {Schema: schema}},
		}
	}

	success, key, err := b.successResponse(e)
	if err != nil {
		return nil, err
	}
	op.Responses[key] = success

	errResp, err := b.errorResponse(e)
	if err != nil {
		return nil, err
	}
	op.Responses["4XX"] = errResp
	op.Responses["5XX"] = errResp
	for _, code := range e.errors {
		op.Responses[strconv.Itoa(code)] = errResp
	}

	return op, nil
}

func (b *docBuilder) successResponse(e *Endpoint) (ResponseObj, string, error) {
	key := strconv.Itoa(e.status)
	desc := "successful operation"
	if e.status == http.StatusCreated {
		desc = "successful creation"
	}

	switch e.respType {
	case voidType:
		return ResponseObj{Description: desc}, key, nil
	case reflect.TypeFor[Redirect]():
		return ResponseObj{Description: "redirect"}, "3XX", nil
	case streamType:
		return ResponseObj{
			Description: desc,
			Content: map[string]MediaObj{
				ContentTypeOctetStream: {Schema: &JSONSchema{Type: "string", Format: "binary"}},
			},
		}, key, nil
	case reflect.TypeFor[SSEStream]():
		return ResponseObj{
			Description: desc,
			Content: map[string]MediaObj{
				"text/event-stream": {Schema: &JSONSchema{Type: "string"}},
			},
		}, key, nil
	}

	d, err := b.schemas.Describe(e.respType)
	if err != nil {
		return ResponseObj{}, "", fmt.Errorf("response: %w", err)
	}
	return ResponseObj{
		Description: desc,
		Content:     map[string]MediaObj{ContentTypeJSON: {Schema: toJSONSchema(d)}},
	}, key, nil
}

func (b *docBuilder) errorResponse(e *Endpoint) (ResponseObj, error) {
	if e.errorType == nil {
		b.defaultError = true
		return ResponseObj{Ref: responseRefPrefix + errorComponent}, nil
	}
	d, err := b.schemas.Describe(e.errorType)
	if err != nil {
		return ResponseObj{}, fmt.Errorf("error type: %w", err)
	}
	return ResponseObj{
		Description: "Error",
		Content:     map[string]MediaObj{ContentTypeJSON: {Schema: toJSONSchema(d)}},
	}, nil
}

// toJSONSchema renders a descriptor as JSON Schema.
func toJSONSchema(d *TypeDescriptor) *JSONSchema {
	s := &JSONSchema{Description: d.Description}

	switch d.Kind {
	case KindReference:
		s.Ref = schemaRefPrefix + d.Ref
	case KindPrimitive:
		s.Type = d.Type
		s.Format = d.Format
	case KindEnum:
		s.Type = d.Type
		s.Enum = d.Variants
	case KindObject:
		s.Type = "object"
		if len(d.Fields) > 0 {
			s.Properties = make(map[string]*JSONSchema, len(d.Fields))
		}
		for _, f := range d.Fields {
			s.Properties[f.Name] = toJSONSchema(f.Type)
			if f.Required {
				s.Required = append(s.Required, f.Name)
			}
		}
	case KindArray:
		s.Type = "array"
		s.Items = toJSONSchema(d.Elem)
	case KindMap:
		s.Type = "object"
		s.AdditionalProperties = toJSONSchema(d.Elem)
	case KindAny:
	}

	c := d.Constraints
	s.Minimum = c.Minimum
	s.Maximum = c.Maximum
	s.MinLength = c.MinLength
	s.MaxLength = c.MaxLength
	s.MinItems = c.MinItems
	s.MaxItems = c.MaxItems
	s.Pattern = c.Pattern
	return s
}
