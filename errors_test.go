package apikit_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := apikit.Error(http.StatusNotFound, "not found")
	assert.EqualError(t, err, "not found")

	var sc apikit.StatusCoder
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, http.StatusNotFound, sc.StatusCode())
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := apikit.Errorf(http.StatusBadRequest, "invalid %s", "email")
	assert.EqualError(t, err, "invalid email")
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err    error
		expect int
	}{
		"with StatusCoder": {
			err:    apikit.Error(http.StatusForbidden, "forbidden"),
			expect: http.StatusForbidden,
		},
		"wrapped StatusCoder": {
			err:    fmt.Errorf("load: %w", apikit.Error(http.StatusGone, "gone")),
			expect: http.StatusGone,
		},
		"without StatusCoder": {
			err:    errors.New("plain error"),
			expect: http.StatusInternalServerError,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, apikit.ErrorStatus(tc.err))
		})
	}
}

func TestHTTPError_fields(t *testing.T) {
	t.Parallel()

	err := apikit.ClientError(http.StatusConflict, "WidgetExists", "widget already exists")
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "WidgetExists", err.ErrorCode)
	assert.EqualError(t, err, "widget already exists")

	internal := apikit.Internal("db down")
	assert.Equal(t, "Internal Server Error", internal.Message)
	assert.EqualError(t, internal, "db down")

	cause := errors.New("boom")
	wrapped := apikit.Wrap(cause)
	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, http.StatusInternalServerError, wrapped.Status)
	assert.Equal(t, apikit.CodeInternal, wrapped.ErrorCode)

	mna := apikit.MethodNotAllowed("GET", "PUT")
	assert.Equal(t, "GET, PUT", mna.Headers.Get("Allow"))
}

type teapotError struct{}

func (teapotError) Error() string   { return "short and stout" }
func (teapotError) StatusCode() int { return http.StatusTeapot }

type unavailableError struct{}

func (unavailableError) Error() string   { return "database is down" }
func (unavailableError) StatusCode() int { return http.StatusServiceUnavailable }

func TestToHTTPError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err     error
		status  int
		code    string
		message string
	}{
		"http error kept": {
			err:     apikit.BadRequest("Bad", "bad thing"),
			status:  http.StatusBadRequest,
			code:    "Bad",
			message: "bad thing",
		},
		"validation errors": {
			err:     apikit.ValidationErrors{{Field: "name", Message: "is required"}},
			status:  http.StatusBadRequest,
			code:    apikit.CodeValidationFailed,
			message: "name: is required",
		},
		"method not allowed": {
			err:     &apikit.MethodNotAllowedError{Method: "POST", Allowed: []string{"GET"}},
			status:  http.StatusMethodNotAllowed,
			code:    apikit.CodeMethodNotAllowed,
			message: "Method Not Allowed",
		},
		"no match": {
			err:     apikit.ErrNoMatch,
			status:  http.StatusNotFound,
			code:    apikit.CodeNotFound,
			message: "Not Found",
		},
		"deadline": {
			err:     fmt.Errorf("query: %w", context.DeadlineExceeded),
			status:  http.StatusServiceUnavailable,
			code:    apikit.CodeTimeout,
			message: "request timed out",
		},
		"client status coder": {
			err:     teapotError{},
			status:  http.StatusTeapot,
			message: "short and stout",
		},
		"server status coder hides message": {
			err:     unavailableError{},
			status:  http.StatusServiceUnavailable,
			code:    apikit.CodeInternal,
			message: "Service Unavailable",
		},
		"plain error": {
			err:     errors.New("secret detail"),
			status:  http.StatusInternalServerError,
			code:    apikit.CodeInternal,
			message: "Internal Server Error",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			he := apikit.ToHTTPError(tt.err)
			assert.Equal(t, tt.status, he.Status)
			assert.Equal(t, tt.code, he.ErrorCode)
			assert.Equal(t, tt.message, he.Message)
		})
	}
}

func TestExtractionError_stage(t *testing.T) {
	t.Parallel()

	type req struct {
		ID    int    `path:"id"`
		Limit int    `query:"limit"`
		Trace int    `header:"x-trace"`
		Theme int    `cookie:"theme"`
		Body  widget `json:"-"`
	}

	var (
		mu   sync.Mutex
		last error
	)
	capture := func(err error) *apikit.HTTPError {
		mu.Lock()
		defer mu.Unlock()
		last = err
		return nil
	}

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Post(a, "/widgets/{id}", echo[req]))
	}, apikit.WithErrorTransformer(capture))

	tests := map[string]struct {
		target string
		header []string
		body   string
		stage  error
		in     apikit.ParamLocation
		field  string
	}{
		"path": {
			target: "/widgets/x",
			stage:  apikit.ErrBindPath,
			in:     apikit.InPath,
			field:  "id",
		},
		"query": {
			target: "/widgets/1?limit=x",
			stage:  apikit.ErrBindQuery,
			in:     apikit.InQuery,
			field:  "limit",
		},
		"header": {
			target: "/widgets/1",
			header: []string{"X-Trace", "x"},
			stage:  apikit.ErrBindHeader,
			in:     apikit.InHeader,
			field:  "x-trace",
		},
		"cookie": {
			target: "/widgets/1",
			header: []string{"Cookie", "theme=x"},
			stage:  apikit.ErrBindCookie,
			in:     apikit.InCookie,
			field:  "theme",
		},
		"body": {
			target: "/widgets/1",
			header: []string{"Content-Type", "application/json"},
			body:   `{"id":1}`,
			stage:  apikit.ErrBindBody,
			in:     apikit.InBody,
			field:  "id",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			body := tt.body
			if body == "" {
				body = `{"id":"w1","name":"a"}`
				tt.header = append(tt.header, "Content-Type", "application/json")
			}

			rec := serve(srv, http.MethodPost, tt.target, body, tt.header...)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			mu.Lock()
			err := last
			mu.Unlock()

			require.ErrorIs(t, err, tt.stage)
			var ee *apikit.ExtractionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.in, ee.In)
			assert.Equal(t, tt.field, ee.Field)
			assert.Equal(t, ee.Message, decodeEnvelope(t, rec).Message)
		})
	}
}
