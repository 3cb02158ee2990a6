package apikit

import (
	"reflect"
	"strings"
)

// ParamLocation is where a request parameter is read from.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InCookie ParamLocation = "cookie"
	InBody   ParamLocation = "body"
)

// paramTags are the struct tags used for binding request parameters.
var paramTags = []string{string(InPath), string(InQuery), string(InHeader), string(InCookie)}

// hasParamTags reports whether the given type has any fields with
// parameter binding tags (path, query, header, cookie).
func hasParamTags(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if f.IsExported() && isParamField(f) {
			return true
		}
	}
	return false
}

// bodyField returns the exported "Body" field of t, if any.
func bodyField(t reflect.Type) (reflect.StructField, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	f, ok := t.FieldByName("Body")
	if !ok || !f.IsExported() || len(f.Index) != 1 {
		return reflect.StructField{}, false
	}
	return f, true
}

// paramLocation returns the location and tag value of a parameter field.
func paramLocation(f reflect.StructField) (ParamLocation, string, bool) {
	for _, tag := range paramTags {
		if v := f.Tag.Get(tag); v != "" {
			return ParamLocation(tag), v, true
		}
	}
	return "", "", false
}

// enumTag splits an enum:"a,b,c" tag into its values.
func enumTag(f reflect.StructField) []string {
	v := f.Tag.Get("enum")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// tagOptions splits a struct tag value on comma and returns
// the name and remaining options.
func tagOptions(tag string) (string, string) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, opts
}

// tagContains reports whether a comma-separated list of options
// contains a particular option.
func tagContains(opts string, name string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == name {
			return true
		}
	}
	return false
}
