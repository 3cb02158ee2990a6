package apikit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/schema"
)

// DefaultBodyLimit is the request body limit used when neither the server
// nor the route sets one.
const DefaultBodyLimit int64 = 1 << 20

// requestCategory describes how a request type should be decoded.
type requestCategory int

const (
	catVoid     requestCategory = iota // Void or no exported fields
	catBodyOnly                        // entire struct is the body (no param tags, no Body field)
	catParams                          // has param tags but no Body field
	catMixed                           // has Body field (params from tagged fields, body from Body)
)

// BindingError reports a request type that cannot be bound to its endpoint.
// It is returned at registration time.
type BindingError struct {
	Endpoint string
	Field    string
	Reason   string
}

func (e *BindingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("%s: field %s: %s", e.Endpoint, e.Field, e.Reason)
}

type paramField struct {
	index    int
	field    string
	name     string
	in       ParamLocation
	required bool
	def      string
	enum     []string
	typ      reflect.Type
	doc      string
	wildcard bool
}

type bodySpec struct {
	index          int // -1 when the whole request struct is the body
	typ            reflect.Type
	required       bool
	contentType    string
	requiredFields []string
}

// requestPlan is the extraction recipe for one endpoint, computed once at
// registration from the request type.
type requestPlan struct {
	typ        reflect.Type
	category   requestCategory
	params     []paramField
	body       *bodySpec
	queryNames map[string]bool
}

type extractOptions struct {
	strict      bool
	strictQuery bool
	bodyLimit   int64
}

var (
	paramDecoders = map[ParamLocation]*schema.Decoder{
		InPath:   newDecoder(string(InPath), true),
		InQuery:  newDecoder(string(InQuery), true),
		InHeader: newDecoder(string(InHeader), true),
		InCookie: newDecoder(string(InCookie), true),
	}
	formDecoder       = newDecoder("json", true)
	strictFormDecoder = newDecoder("json", false)

	stageErrors = map[ParamLocation]error{
		InPath:   ErrBindPath,
		InQuery:  ErrBindQuery,
		InHeader: ErrBindHeader,
		InCookie: ErrBindCookie,
		InBody:   ErrBindBody,
	}

	errBodyTooLarge = errors.New("request body too large")
)

func newDecoder(alias string, ignoreUnknown bool) *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag(alias)
	d.IgnoreUnknownKeys(ignoreUnknown)
	d.RegisterConverter(time.Duration(0), func(s string) reflect.Value {
		v, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(v)
	})
	return d
}

// buildPlan validates the request type of e against its path template and
// content type and returns the extraction plan.
func buildPlan(e *Endpoint) (*requestPlan, error) {
	t := e.reqType
	identity := e.method + " " + e.template.String()
	fail := func(field, format string, args ...any) error {
		return &BindingError{Endpoint: identity, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	ct := e.contentType
	if ct == "" {
		ct = ContentTypeJSON
	}
	if _, ok := codecFor(ct); !ok {
		return nil, fail("", "unsupported request content type %q", ct)
	}

	if t.Kind() != reflect.Struct {
		return nil, fail("", "request type %s must be a struct", t)
	}

	if field, err := checkPatterns(t, make(map[reflect.Type]bool)); err != nil {
		return nil, fail(field, "invalid pattern: %v", err)
	}

	p := &requestPlan{typ: t, queryNames: make(map[string]bool)}

	vars := e.template.Variables()
	bound := make(map[string]bool, len(vars))
	for _, v := range vars {
		bound[v] = false
	}
	wildcard, hasWildcard := e.template.Wildcard()

	exported := 0
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		exported++

		in, tag, ok := paramLocation(f)
		if !ok {
			continue
		}
		name, opts := tagOptions(tag)
		if name == "" || name == "-" {
			return nil, fail(f.Name, "empty %s parameter name", in)
		}

		pf := paramField{
			index:    i,
			field:    f.Name,
			name:     name,
			in:       in,
			required: tagContains(opts, "required"),
			def:      f.Tag.Get("default"),
			enum:     enumTag(f),
			typ:      f.Type,
			doc:      f.Tag.Get("doc"),
		}
		if vals, ok := enumValues(f.Type); ok && pf.enum == nil {
			pf.enum = vals
		}

		switch in {
		case InPath:
			already, declared := bound[name]
			if !declared {
				return nil, fail(f.Name, "path parameter %q is not a variable of %s", name, e.template)
			}
			if already {
				return nil, fail(f.Name, "path variable %q is bound by more than one field", name)
			}
			bound[name] = true
			pf.required = true
			if hasWildcard && wildcard == name {
				pf.wildcard = true
				if f.Type.Kind() != reflect.String {
					return nil, fail(f.Name, "wildcard parameter %q must be a string, got %s", name, f.Type)
				}
			}
		case InQuery:
			p.queryNames[name] = true
		}

		if !isScalarParam(f.Type, in == InQuery || in == InHeader) {
			return nil, fail(f.Name, "unsupported %s parameter type %s", in, f.Type)
		}
		p.params = append(p.params, pf)
	}

	for _, v := range vars {
		if !bound[v] {
			return nil, fail("", "path variable %q has no field tagged path:%q", v, v)
		}
	}

	switch bf, ok := bodyField(t); {
	case ok:
		if isParamField(bf) {
			return nil, fail(bf.Name, "Body field cannot carry a parameter tag")
		}
		p.category = catMixed
		p.body = &bodySpec{
			index:       bf.Index[0],
			typ:         bf.Type,
			required:    bf.Type.Kind() != reflect.Pointer,
			contentType: ct,
		}
	case t == voidType || exported == 0:
		p.category = catVoid
	case hasParamTags(t):
		p.category = catParams
	default:
		p.category = catBodyOnly
		p.body = &bodySpec{
			index:       -1,
			typ:         t,
			required:    methodHasBody(e.method),
			contentType: ct,
		}
	}

	if p.body != nil {
		bt := indirect(p.body.typ)
		switch ct {
		case ContentTypeOctetStream:
			if bt.Kind() != reflect.Slice || bt.Elem().Kind() != reflect.Uint8 {
				return nil, fail("Body", "%s body must be []byte, got %s", ct, p.body.typ)
			}
		case ContentTypeForm:
			if bt.Kind() != reflect.Struct {
				return nil, fail("Body", "%s body must be a struct, got %s", ct, p.body.typ)
			}
		case ContentTypeJSON:
			if bt.Kind() == reflect.Struct {
				p.body.requiredFields = requiredJSONFields(bt)
			}
		}
	}

	return p, nil
}

// extract builds a *Req from the request. Stages run path, query, header,
// cookie, then body; the first failure stops the pipeline.
func (p *requestPlan) extract(ctx context.Context, r *http.Request, vars map[string]string, opts extractOptions) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rv := reflect.New(p.typ)
	if p.category == catVoid {
		return rv.Interface(), nil
	}

	cookies := r.Cookies()
	stages := []func() error{
		func() error {
			return p.bindParams(rv, InPath, func(name string) []string {
				if v, ok := vars[name]; ok {
					return []string{v}
				}
				return nil
			})
		},
		func() error {
			q := r.URL.Query()
			if opts.strict || opts.strictQuery {
				if err := p.checkUnknownQuery(q); err != nil {
					return err
				}
			}
			return p.bindParams(rv, InQuery, func(name string) []string { return q[name] })
		},
		func() error {
			return p.bindParams(rv, InHeader, r.Header.Values)
		},
		func() error {
			return p.bindParams(rv, InCookie, func(name string) []string {
				for _, c := range cookies {
					if c.Name == name {
						return []string{c.Value}
					}
				}
				return nil
			})
		},
		func() error {
			return p.bindBody(rv, r, opts)
		},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stage(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func (p *requestPlan) bindParams(rv reflect.Value, in ParamLocation, lookup func(string) []string) error {
	src := make(map[string][]string)
	for _, pf := range p.params {
		if pf.in != in {
			continue
		}
		values := lookup(pf.name)
		blank := false
		if in != InPath && len(values) > 0 && !slices.ContainsFunc(values, func(v string) bool { return v != "" }) {
			values, blank = nil, true
		}
		if len(values) == 0 && pf.def != "" {
			values = []string{pf.def}
		}
		if len(values) == 0 {
			if pf.required {
				return missingParam(in, pf.name)
			}
			if blank && !textParam(pf.typ) {
				return &ExtractionError{
					In:      in,
					Field:   pf.name,
					Code:    CodeInvalidParameter,
					Message: fmt.Sprintf("invalid value for %s parameter %q: expected %s", in, pf.name, typeLabel(scalarType(pf.typ))),
					stage:   stageErrors[in],
				}
			}
			continue
		}
		if len(pf.enum) > 0 {
			for _, v := range values {
				if !slices.Contains(pf.enum, v) {
					return &ExtractionError{
						In:      in,
						Field:   pf.name,
						Code:    CodeInvalidParameter,
						Message: fmt.Sprintf("invalid value for %s parameter %q: must be one of [%s]", in, pf.name, strings.Join(pf.enum, ", ")),
						stage:   stageErrors[in],
					}
				}
			}
		}
		src[pf.name] = values
	}
	if len(src) == 0 {
		return nil
	}
	if err := paramDecoders[in].Decode(rv.Interface(), src); err != nil {
		return decodeError(in, err)
	}
	return nil
}

func (p *requestPlan) checkUnknownQuery(q map[string][]string) error {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !p.queryNames[k] {
			return &ExtractionError{
				In:      InQuery,
				Field:   k,
				Code:    CodeInvalidParameter,
				Message: fmt.Sprintf("unknown query parameter %q", k),
				stage:   ErrBindQuery,
			}
		}
	}
	return nil
}

func (p *requestPlan) bindBody(rv reflect.Value, r *http.Request, opts extractOptions) error {
	b := p.body
	if b == nil {
		return nil
	}

	limit := opts.bodyLimit
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	if r.ContentLength > limit {
		return payloadTooLarge(limit)
	}
	data, err := readBody(r.Body, limit)
	if errors.Is(err, errBodyTooLarge) {
		return payloadTooLarge(limit)
	}
	if err != nil {
		return bodyError(CodeInvalidBody, "", "failed to read request body", err)
	}

	empty := len(data) == 0
	if b.contentType != ContentTypeOctetStream {
		empty = len(bytes.TrimSpace(data)) == 0
	}
	if empty {
		if b.required {
			return bodyError(CodeMissingBody, "", "request body is required", nil)
		}
		return nil
	}

	codec, _ := codecFor(b.contentType)
	if ct := r.Header.Get("Content-Type"); ct != "" && mediaType(ct) != codec.ContentType() {
		return bodyError(CodeUnsupportedMediaType, "",
			fmt.Sprintf("expected content type %q, got %q", codec.ContentType(), ct), nil)
	}

	target := rv.Elem()
	if b.index >= 0 {
		target = target.Field(b.index)
	}
	ptr := target.Addr()
	if target.Kind() == reflect.Pointer {
		ptr = reflect.New(target.Type().Elem())
	}

	if err := codec.Decode(data, ptr.Interface(), opts.strict); err != nil {
		if b.contentType == ContentTypeForm {
			return decodeError(InBody, err)
		}
		return jsonBodyError(err)
	}

	if len(b.requiredFields) > 0 {
		if err := b.checkPresence(data); err != nil {
			return err
		}
	}

	if target.Kind() == reflect.Pointer {
		target.Set(ptr)
	}
	return nil
}

// checkPresence verifies required top-level JSON fields appear in data.
func (b *bodySpec) checkPresence(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		if b.required {
			return bodyError(CodeMissingBody, "", "request body is required", nil)
		}
		return nil
	}
	for _, name := range b.requiredFields {
		if _, ok := obj[name]; !ok {
			return bodyError(CodeInvalidBody, name, fmt.Sprintf("missing required body field %q", name), nil)
		}
	}
	return nil
}

func readBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil || body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func missingParam(in ParamLocation, name string) *ExtractionError {
	return &ExtractionError{
		In:      in,
		Field:   name,
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("missing required %s parameter %q", in, name),
		stage:   stageErrors[in],
	}
}

func payloadTooLarge(limit int64) *ExtractionError {
	return bodyError(CodePayloadTooLarge, "", fmt.Sprintf("request body exceeds %d bytes", limit), errBodyTooLarge)
}

func bodyError(code, field, msg string, cause error) *ExtractionError {
	return &ExtractionError{
		In:      InBody,
		Field:   field,
		Code:    code,
		Message: msg,
		stage:   ErrBindBody,
		cause:   cause,
	}
}

// decodeError converts a gorilla/schema error into an ExtractionError naming
// the first offending key.
func decodeError(in ParamLocation, err error) *ExtractionError {
	var multi schema.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		keys := make([]string, 0, len(multi))
		for k := range multi {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		err = multi[keys[0]]
	}

	code := CodeInvalidParameter
	kind := fmt.Sprintf("%s parameter", in)
	if in == InBody {
		code = CodeInvalidBody
		kind = "body field"
	}

	e := &ExtractionError{In: in, Code: code, stage: stageErrors[in], cause: err}

	var (
		conv    schema.ConversionError
		empty   schema.EmptyFieldError
		unknown schema.UnknownKeyError
	)
	switch {
	case errors.As(err, &conv):
		e.Field = conv.Key
		e.Message = fmt.Sprintf("invalid value for %s %q: expected %s", kind, conv.Key, typeLabel(conv.Type))
	case errors.As(err, &empty):
		e.Field = empty.Key
		e.Message = fmt.Sprintf("missing required %s %q", kind, empty.Key)
	case errors.As(err, &unknown):
		e.Field = unknown.Key
		e.Message = fmt.Sprintf("unknown %s %q", kind, unknown.Key)
	default:
		e.Message = fmt.Sprintf("invalid %s: %v", kind, err)
	}
	return e
}

func jsonBodyError(err error) *ExtractionError {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return bodyError(CodeInvalidBody, "", fmt.Sprintf("invalid body: expected %s", typeLabel(typeErr.Type)), err)
		}
		return bodyError(CodeInvalidBody, typeErr.Field,
			fmt.Sprintf("invalid value for body field %q: expected %s", typeErr.Field, typeLabel(typeErr.Type)), err)
	case errors.As(err, &syntaxErr):
		return bodyError(CodeInvalidBody, "", fmt.Sprintf("malformed JSON body at offset %d", syntaxErr.Offset), err)
	default:
		return bodyError(CodeInvalidBody, "", "invalid request body: "+err.Error(), err)
	}
}

func typeLabel(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	t = indirect(t)
	if t == durationType {
		return "duration"
	}
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	}
	return t.String()
}

// isScalarParam reports whether t can be bound from a string parameter.
func isScalarParam(t reflect.Type, allowSlice bool) bool {
	t = indirect(t)
	if allowSlice && t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		return isScalarParam(t.Elem(), false)
	}
	if t == durationType || reflect.PointerTo(t).Implements(textUnmarshal) {
		return true
	}
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// scalarType returns the element type of a slice parameter, or t itself.
func scalarType(t reflect.Type) reflect.Type {
	t = indirect(t)
	if t.Kind() == reflect.Slice {
		return indirect(t.Elem())
	}
	return t
}

// textParam reports whether an empty string is a valid value for t.
func textParam(t reflect.Type) bool {
	return scalarType(t).Kind() == reflect.String
}

// requiredJSONFields lists the required top-level JSON names of struct t.
func requiredJSONFields(t reflect.Type) []string {
	var names []string
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Tag.Get("json") == "" {
			if ft := indirect(f.Type); ft.Kind() == reflect.Struct {
				names = append(names, requiredJSONFields(ft)...)
				continue
			}
		}
		if !f.IsExported() || isParamField(f) {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}
		if fieldRequired(f) {
			names = append(names, name)
		}
	}
	return names
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
