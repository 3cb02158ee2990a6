package apikit_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func TestGroup_prefix(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		prefixes []string
		pattern  string
		want     string
	}{
		"single": {
			prefixes: []string{"/v1"},
			pattern:  "/health",
			want:     "/v1/health",
		},
		"trailing slash trimmed": {
			prefixes: []string{"/v1/"},
			pattern:  "/health",
			want:     "/v1/health",
		},
		"nested": {
			prefixes: []string{"/v1", "/widgets"},
			pattern:  "/{id}",
			want:     "/v1/widgets/{id}",
		},
		"root pattern": {
			prefixes: []string{"/v1"},
			pattern:  "/",
			want:     "/v1",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := apikit.New()
			var reg apikit.Registrar = a
			for _, p := range tt.prefixes {
				if g, ok := reg.(*apikit.Group); ok {
					reg = g.Group(p)
				} else {
					reg = a.Group(p)
				}
			}
			if strings.Contains(tt.pattern, "{id}") {
				require.NoError(t, apikit.Get(reg, tt.pattern, nothing[byID]))
			} else {
				require.NoError(t, apikit.Get(reg, tt.pattern, nothing[apikit.Void]))
			}

			endpoints := a.Endpoints()
			require.Len(t, endpoints, 1)
			assert.Equal(t, tt.want, endpoints[0].Path())
		})
	}
}

func TestGroup_serves_prefixed_routes(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(a *apikit.API) {
		v1 := a.Group("/v1")
		require.NoError(t, apikit.Get(v1, "/widgets/{id}", func(_ context.Context, req *byID) (*widget, error) {
			return &widget{ID: req.ID}, nil
		}))
	})

	rec := serve(srv, http.MethodGet, "/v1/widgets/w1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"w1","name":""}`, rec.Body.String())

	rec = serve(srv, http.MethodGet, "/widgets/w1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroup_tags(t *testing.T) {
	t.Parallel()

	a := apikit.New()
	v1 := a.Group("/v1", apikit.WithGroupTags("v1"))
	admin := v1.Group("/admin", apikit.WithGroupTags("admin"))
	require.NoError(t, apikit.Get(admin, "/items", nothing[apikit.Void], apikit.WithTags("items")))
	require.NoError(t, apikit.Get(v1, "/health", nothing[apikit.Void]))

	reg, err := a.Registry()
	require.NoError(t, err)

	doc := reg.Document()
	assert.Equal(t, []string{"v1", "admin", "items"}, doc.Paths["/v1/admin/items"]["get"].Tags)
	assert.Equal(t, []string{"v1"}, doc.Paths["/v1/health"]["get"].Tags)
}

func TestGroup_middleware_scoped(t *testing.T) {
	t.Parallel()

	tr := &trace{}
	srv := newServer(t, func(a *apikit.API) {
		admin := a.Group("/admin", apikit.WithGroupMiddleware(tr.mw("admin")))
		require.NoError(t, apikit.Get(admin, "/dashboard", nothing[apikit.Void]))
		require.NoError(t, apikit.Get(a, "/public", nothing[apikit.Void]))
	})

	rec := serve(srv, http.MethodGet, "/public", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, tr.get())

	rec = serve(srv, http.MethodGet, "/admin/dashboard", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"admin:in", "admin:out"}, tr.get())
}

func TestGroup_errors_propagate(t *testing.T) {
	t.Parallel()

	a := apikit.New()
	g := a.Group("/v1")
	require.Error(t, g.Register(nil))

	require.NoError(t, apikit.Get(g, "/x", nothing[apikit.Void]))
	var ce *apikit.ConflictError
	require.ErrorAs(t, apikit.Get(g, "/x", nothing[apikit.Void]), &ce)

	_, err := a.Registry()
	require.NoError(t, err)
	require.ErrorIs(t, apikit.Get(g, "/y", nothing[apikit.Void]), apikit.ErrFrozen)
}
