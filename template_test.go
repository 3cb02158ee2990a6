package apikit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		raw      string
		want     string
		openapi  string
		vars     []string
		wildcard string
	}{
		"root": {
			raw:     "/",
			want:    "/",
			openapi: "/",
		},
		"literals": {
			raw:     "/widgets/all",
			want:    "/widgets/all",
			openapi: "/widgets/all",
		},
		"trailing slash dropped": {
			raw:     "/widgets/",
			want:    "/widgets",
			openapi: "/widgets",
		},
		"variables": {
			raw:     "/projects/{project}/widgets/{id}",
			want:    "/projects/{project}/widgets/{id}",
			openapi: "/projects/{project}/widgets/{id}",
			vars:    []string{"project", "id"},
		},
		"wildcard": {
			raw:      "/files/{path...}",
			want:     "/files/{path...}",
			openapi:  "/files/{path}",
			vars:     []string{"path"},
			wildcard: "path",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := apikit.ParseTemplate(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.want, tmpl.String())
			assert.Equal(t, tt.openapi, tmpl.OpenAPIPath())
			assert.Equal(t, tt.vars, tmpl.Variables())

			w, ok := tmpl.Wildcard()
			assert.Equal(t, tt.wildcard != "", ok)
			assert.Equal(t, tt.wildcard, w)
		})
	}
}

func TestParseTemplate_segments(t *testing.T) {
	t.Parallel()

	tmpl, err := apikit.ParseTemplate("/a/{b}/{c...}")
	require.NoError(t, err)

	assert.Equal(t, []apikit.Segment{
		{Kind: apikit.SegmentLiteral, Value: "a"},
		{Kind: apikit.SegmentVariable, Value: "b"},
		{Kind: apikit.SegmentWildcard, Value: "c"},
	}, tmpl.Segments())
}

func TestParseTemplate_errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		raw    string
		reason string
	}{
		"empty":                {raw: "", reason: "empty template"},
		"relative":             {raw: "widgets", reason: "must begin with '/'"},
		"empty segment":        {raw: "/a//b", reason: "empty segment"},
		"unterminated":         {raw: "/a/{id", reason: "unterminated variable"},
		"unmatched close":      {raw: "/a/id}", reason: "unmatched '}'"},
		"partial segment":      {raw: "/a/x{id}", reason: "must span the whole segment"},
		"empty name":           {raw: "/a/{}", reason: "invalid variable name"},
		"leading digit":        {raw: "/a/{1id}", reason: "invalid variable name"},
		"punctuation":          {raw: "/a/{i-d}", reason: "invalid variable name"},
		"repeated variable":    {raw: "/a/{id}/b/{id}", reason: `variable "id" appears more than once`},
		"wildcard not last":    {raw: "/a/{rest...}/b", reason: "must be the last segment"},
		"wildcard repeats var": {raw: "/a/{id}/{id...}", reason: `variable "id" appears more than once`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := apikit.ParseTemplate(tt.raw)
			require.Error(t, err)

			var te *apikit.TemplateError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.raw, te.Template)
			assert.Contains(t, te.Reason, tt.reason)
		})
	}
}
