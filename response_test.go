package apikit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func TestResponse_json_encoding(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Get(a, "/widgets", func(_ context.Context, _ *apikit.Void) (*widgetList, error) {
			return &widgetList{Items: []widget{{ID: "w1", Name: "a"}, {ID: "w2", Name: "b"}}}, nil
		}))
	})

	rec := serve(srv, http.MethodGet, "/widgets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"items":[{"id":"w1","name":"a"},{"id":"w2","name":"b"}]}`, rec.Body.String())
	assert.Equal(t, "57", rec.Header().Get("Content-Length"))
}

type acceptedWidget struct {
	ID string `json:"id"`
}

func (*acceptedWidget) StatusCode() int { return http.StatusAccepted }

type sessionWidget struct {
	ID string `json:"id"`
}

func (*sessionWidget) Cookies() []*http.Cookie {
	return []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}}
}

func (*sessionWidget) SetHeaders(h http.Header) {
	h.Set("ETag", `"v1"`)
	h.Set(apikit.RequestIDHeader, "spoofed")
}

func TestResponse_conversion(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Post(a, "/async", func(_ context.Context, _ *apikit.Void) (*acceptedWidget, error) {
			return &acceptedWidget{ID: "w1"}, nil
		}, apikit.WithStatus(http.StatusCreated)))
		require.NoError(t, apikit.Get(a, "/session", func(_ context.Context, _ *apikit.Void) (*sessionWidget, error) {
			return &sessionWidget{ID: "w1"}, nil
		}))
		require.NoError(t, apikit.Post(a, "/created", func(_ context.Context, _ *apikit.Void) (*widget, error) {
			return &widget{ID: "w1"}, nil
		}, apikit.WithStatus(http.StatusCreated)))
		require.NoError(t, apikit.Delete(a, "/widgets/{id}", nothing[byID]))
		require.NoError(t, apikit.Get(a, "/nil", func(_ context.Context, _ *apikit.Void) (*widget, error) {
			return nil, nil
		}))
	})

	t.Run("status coder wins", func(t *testing.T) {
		t.Parallel()

		rec := serve(srv, http.MethodPost, "/async", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"id":"w1"}`, rec.Body.String())
	})

	t.Run("route status", func(t *testing.T) {
		t.Parallel()

		rec := serve(srv, http.MethodPost, "/created", "")
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("cookies and headers", func(t *testing.T) {
		t.Parallel()

		rec := serve(srv, http.MethodGet, "/session", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "session=abc; Path=/", rec.Header().Get("Set-Cookie"))
		assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))
		assert.NotEqual(t, "spoofed", rec.Header().Get(apikit.RequestIDHeader))
	})

	t.Run("void", func(t *testing.T) {
		t.Parallel()

		rec := serve(srv, http.MethodDelete, "/widgets/w1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Empty(t, rec.Header().Get("Content-Type"))
	})

	t.Run("nil result", func(t *testing.T) {
		t.Parallel()

		rec := serve(srv, http.MethodGet, "/nil", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestResponse_redirect(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		redirect apikit.Redirect
		status   int
	}{
		"default found": {
			redirect: apikit.Redirect{URL: "/new"},
			status:   http.StatusFound,
		},
		"permanent": {
			redirect: apikit.Redirect{URL: "https://example.com/new", Status: http.StatusMovedPermanently},
			status:   http.StatusMovedPermanently,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, func(a *apikit.API) {
				require.NoError(t, apikit.Get(a, "/old", func(_ context.Context, _ *apikit.Void) (*apikit.Redirect, error) {
					return &tt.redirect, nil
				}))
			})

			rec := serve(srv, http.MethodGet, "/old", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.redirect.URL, rec.Header().Get("Location"))
		})
	}
}

func TestResponse_encode_failure(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Get(a, "/bad", func(_ context.Context, _ *apikit.Void) (*map[string]any, error) {
			m := map[string]any{"fn": func() {}}
			return &m, nil
		}))
	})

	rec := serve(srv, http.MethodGet, "/bad", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Internal Server Error", env.Message)
	assert.Equal(t, apikit.CodeInternal, errorCode(env))
}

type quotaError struct {
	responder func(apikit.ErrorContext) *apikit.Response
}

func (e *quotaError) Error() string { return "quota exceeded" }

func (e *quotaError) ErrorResponse(ectx apikit.ErrorContext) *apikit.Response {
	return e.responder(ectx)
}

func TestResponse_errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err     error
		status  int
		code    string
		message string
		body    string
	}{
		"http error": {
			err:     apikit.ClientError(http.StatusConflict, "WidgetExists", "widget already exists"),
			status:  http.StatusConflict,
			code:    "WidgetExists",
			message: "widget already exists",
		},
		"http error without code omits error_code": {
			err:     apikit.Error(http.StatusConflict, "widget already exists"),
			status:  http.StatusConflict,
			message: "widget already exists",
		},
		"plain error hides detail": {
			err:     errors.New("connection refused"),
			status:  http.StatusInternalServerError,
			code:    apikit.CodeInternal,
			message: "Internal Server Error",
		},
		"status outside error range": {
			err:     apikit.Error(http.StatusOK, "fine"),
			status:  http.StatusInternalServerError,
			message: "fine",
		},
		"empty message uses status text": {
			err:     apikit.Error(http.StatusForbidden, ""),
			status:  http.StatusForbidden,
			message: "Forbidden",
		},
		"custom responder": {
			err: &quotaError{responder: func(ectx apikit.ErrorContext) *apikit.Response {
				h := make(http.Header)
				h.Set("Content-Type", "text/plain")
				h.Set("Retry-After", "30")
				return &apikit.Response{
					Status: http.StatusTooManyRequests,
					Header: h,
					Body:   []byte("slow down " + ectx.Endpoint.Identity()),
				}
			}},
			status: http.StatusTooManyRequests,
			body:   "slow down GET /fail",
		},
		"custom responder without status": {
			err: &quotaError{responder: func(apikit.ErrorContext) *apikit.Response {
				return &apikit.Response{Body: []byte("oops")}
			}},
			status: http.StatusInternalServerError,
			body:   "oops",
		},
		"custom responder returns nil": {
			err: &quotaError{responder: func(apikit.ErrorContext) *apikit.Response {
				return nil
			}},
			status:  http.StatusInternalServerError,
			code:    apikit.CodeInternal,
			message: "Internal Server Error",
		},
		"custom responder panics": {
			err: &quotaError{responder: func(apikit.ErrorContext) *apikit.Response {
				panic("broken responder")
			}},
			status:  http.StatusInternalServerError,
			code:    apikit.CodeInternal,
			message: "Internal Server Error",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, func(a *apikit.API) {
				require.NoError(t, apikit.Get(a, "/fail", func(_ context.Context, _ *apikit.Void) (*widget, error) {
					return nil, tt.err
				}))
			})

			rec := serve(srv, http.MethodGet, "/fail", "")
			assert.Equal(t, tt.status, rec.Code)

			id := rec.Header().Get(apikit.RequestIDHeader)
			require.NotEmpty(t, id)

			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}

			var env map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.message, env["message"])
			assert.Equal(t, id, env["request_id"])
			if tt.code == "" {
				assert.NotContains(t, env, "error_code")
			} else {
				assert.Equal(t, tt.code, env["error_code"])
			}
		})
	}
}

func TestResponse_error_headers(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Get(a, "/fail", func(_ context.Context, _ *apikit.Void) (*widget, error) {
			he := apikit.ClientError(http.StatusUnauthorized, "Unauthorized", "login required")
			he.Headers = http.Header{"Www-Authenticate": {"Bearer"}}
			return nil, he
		}))
	})

	rec := serve(srv, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
