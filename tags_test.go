package apikit_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func TestHasParamTags(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		typ    reflect.Type
		expect bool
	}{
		"with path tag": {
			typ: reflect.TypeOf(struct {
				ID string `path:"id"`
			}{}),
			expect: true,
		},
		"with query tag": {
			typ: reflect.TypeOf(struct {
				Page int `query:"page"`
			}{}),
			expect: true,
		},
		"with header tag": {
			typ: reflect.TypeOf(struct {
				Trace string `header:"x-trace"`
			}{}),
			expect: true,
		},
		"with cookie tag": {
			typ: reflect.TypeOf(struct {
				Session string `cookie:"session"`
			}{}),
			expect: true,
		},
		"unexported tagged field": {
			typ: reflect.TypeOf(struct {
				id string `path:"id"`
			}{}),
			expect: false,
		},
		"no param tags": {
			typ: reflect.TypeOf(struct {
				Name string `json:"name"`
			}{}),
			expect: false,
		},
		"pointer to struct": {
			typ: reflect.TypeOf(&struct {
				ID string `path:"id"`
			}{}),
			expect: true,
		},
		"non-struct": {
			typ:    reflect.TypeFor[string](),
			expect: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, apikit.HasParamTags(tc.typ))
		})
	}
}

func TestTagOptions(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input      string
		expectName string
		expectOpts string
	}{
		"name only": {
			input:      "field",
			expectName: "field",
			expectOpts: "",
		},
		"name with options": {
			input:      "field,omitempty",
			expectName: "field",
			expectOpts: "omitempty",
		},
		"name with multiple options": {
			input:      "field,omitempty,string",
			expectName: "field",
			expectOpts: "omitempty,string",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			gotName, gotOpts := apikit.TagOptions(tc.input)
			assert.Equal(t, tc.expectName, gotName)
			assert.Equal(t, tc.expectOpts, gotOpts)
		})
	}
}

func TestTagContains(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts   string
		name   string
		expect bool
	}{
		"contains": {
			opts:   "omitempty,string",
			name:   "omitempty",
			expect: true,
		},
		"not contains": {
			opts:   "omitempty,string",
			name:   "required",
			expect: false,
		},
		"single option match": {
			opts:   "omitempty",
			name:   "omitempty",
			expect: true,
		},
		"empty opts": {
			opts:   "",
			name:   "omitempty",
			expect: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, apikit.TagContains(tc.opts, tc.name))
		})
	}
}

func TestJSONFieldName(t *testing.T) {
	t.Parallel()

	type sample struct {
		Plain   string
		Renamed string `json:"renamed"`
		Options string `json:"opts,omitempty"`
		Skipped string `json:"-"`
		NoName  string `json:",omitempty"`
	}

	tests := map[string]string{
		"Plain":   "Plain",
		"Renamed": "renamed",
		"Options": "opts",
		"Skipped": "-",
		"NoName":  "NoName",
	}

	typ := reflect.TypeFor[sample]()
	for field, want := range tests {
		t.Run(field, func(t *testing.T) {
			t.Parallel()

			f, ok := typ.FieldByName(field)
			require.True(t, ok)
			assert.Equal(t, want, apikit.JSONFieldName(f))
		})
	}
}
