package apikit

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// checkPatterns compiles every pattern tag reachable from t. It returns the
// dotted Go path of the first field whose pattern does not compile.
func checkPatterns(t reflect.Type, seen map[reflect.Type]bool) (string, error) {
	t = indirect(t)
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return checkPatterns(t.Elem(), seen)
	case reflect.Struct:
	default:
		return "", nil
	}
	if seen[t] {
		return "", nil
	}
	seen[t] = true

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if p := f.Tag.Get("pattern"); p != "" {
			if _, err := compilePattern(p); err != nil {
				return f.Name, err
			}
		}
		if name, err := checkPatterns(f.Type, seen); err != nil {
			return f.Name + "." + name, err
		}
	}
	return "", nil
}

// applyConstraintTags copies constraint tags of f into d so they appear in
// the generated schema.
func applyConstraintTags(d *TypeDescriptor, f reflect.StructField) {
	c := &d.Constraints
	if v, ok := floatTag(f, "minimum"); ok {
		c.Minimum = &v
	}
	if v, ok := floatTag(f, "maximum"); ok {
		c.Maximum = &v
	}
	if v, ok := intTag(f, "minLength"); ok {
		c.MinLength = &v
	}
	if v, ok := intTag(f, "maxLength"); ok {
		c.MaxLength = &v
	}
	if v, ok := intTag(f, "minItems"); ok {
		c.MinItems = &v
	}
	if v, ok := intTag(f, "maxItems"); ok {
		c.MaxItems = &v
	}
	if p := f.Tag.Get("pattern"); p != "" {
		c.Pattern = p
	}
	if vals := enumTag(f); vals != nil && d.Kind == KindPrimitive && d.Type == "string" {
		d.Kind = KindEnum
		d.Variants = vals
	}
}

func floatTag(f reflect.StructField, key string) (float64, bool) {
	tag := f.Tag.Get(key)
	if tag == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(tag, 64)
	return v, err == nil
}

func intTag(f reflect.StructField, key string) (int, bool) {
	tag := f.Tag.Get(key)
	if tag == "" {
		return 0, false
	}
	v, err := strconv.Atoi(tag)
	return v, err == nil
}

// validateConstraints checks all constraint tags on the struct fields and
// returns every violation as ValidationErrors.
func validateConstraints(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	var errs ValidationErrors
	collectConstraintErrors(rv, "", &errs)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func collectConstraintErrors(rv reflect.Value, prefix string, errs *ValidationErrors) {
	t := rv.Type()

	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		fv := rv.Field(i)

		name := jsonFieldName(f)
		if _, tag, ok := paramLocation(f); ok {
			name, _ = tagOptions(tag)
		}
		if name == "-" {
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if prefix == "" && f.Name == "Body" && !isParamField(f) {
			path = "body"
		}

		for fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				break
			}
			fv = fv.Elem()
		}
		if fv.Kind() == reflect.Pointer {
			continue
		}
		if rv.Field(i).IsZero() && fieldOptional(f) {
			continue
		}

		checkFieldConstraints(f, fv, path, errs)

		switch {
		case fv.Kind() == reflect.Struct && !isParamField(f):
			if f.Anonymous && f.Tag.Get("json") == "" {
				collectConstraintErrors(fv, prefix, errs)
			} else {
				collectConstraintErrors(fv, path, errs)
			}
		case fv.Kind() == reflect.Slice && indirect(fv.Type().Elem()).Kind() == reflect.Struct:
			for j := range fv.Len() {
				ev := fv.Index(j)
				if ev.Kind() == reflect.Pointer {
					if ev.IsNil() {
						continue
					}
					ev = ev.Elem()
				}
				collectConstraintErrors(ev, fmt.Sprintf("%s[%d]", path, j), errs)
			}
		}
	}
}

// fieldOptional reports whether a request may leave f out. An optional
// non-pointer field holding its zero value counts as absent.
func fieldOptional(f reflect.StructField) bool {
	if in, tag, ok := paramLocation(f); ok {
		_, opts := tagOptions(tag)
		return in != InPath && !tagContains(opts, "required")
	}
	return !fieldRequired(f)
}

func checkFieldConstraints(f reflect.StructField, fv reflect.Value, path string, errs *ValidationErrors) {
	add := func(format string, args ...any) {
		*errs = append(*errs, ValidationError{Field: path, Message: fmt.Sprintf(format, args...)})
	}

	if fv.Kind() == reflect.String {
		val := fv.String()
		length := len([]rune(val))
		if n, ok := intTag(f, "minLength"); ok && length < n {
			add("must be at least %d characters", n)
		}
		if n, ok := intTag(f, "maxLength"); ok && length > n {
			add("must be at most %d characters", n)
		}
		if tag := f.Tag.Get("pattern"); tag != "" {
			if re, err := compilePattern(tag); err == nil && !re.MatchString(val) {
				add("must match pattern %s", tag)
			}
		}

		allowed := enumTag(f)
		if allowed == nil && !isParamField(f) {
			allowed, _ = enumValues(f.Type)
		}
		if allowed != nil && !slices.Contains(allowed, val) {
			add("must be one of [%s]", strings.Join(allowed, ", "))
		}
	}

	if isNumericKind(fv.Kind()) {
		floatVal := toFloat64(fv)
		if lower, ok := floatTag(f, "minimum"); ok && floatVal < lower {
			add("must be at least %s", f.Tag.Get("minimum"))
		}
		if upper, ok := floatTag(f, "maximum"); ok && floatVal > upper {
			add("must be at most %s", f.Tag.Get("maximum"))
		}
	}

	if fv.Kind() == reflect.Slice || fv.Kind() == reflect.Array {
		length := fv.Len()
		if n, ok := intTag(f, "minItems"); ok && length < n {
			add("must have at least %d items", n)
		}
		if n, ok := intTag(f, "maxItems"); ok && length > n {
			add("must have at most %d items", n)
		}
	}
}

func isNumericKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toFloat64(v reflect.Value) float64 {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default: // float32, float64
		return v.Float()
	}
}
