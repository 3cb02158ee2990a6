package apikit_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

// newServer registers endpoints through build and returns a server for them.
func newServer(t *testing.T, build func(a *apikit.API), opts ...apikit.ServerOption) *apikit.Server {
	t.Helper()

	a := apikit.New(apikit.WithTitle("test"), apikit.WithVersion("1.0.0"))
	build(a)
	reg, err := a.Registry()
	require.NoError(t, err)
	return apikit.NewServer(reg, opts...)
}

// serve sends one request through h.
func serve(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Add(header[i], header[i+1])
	}
	return record(h, req)
}

func record(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apikit.ErrorEnvelope {
	t.Helper()

	var env apikit.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func errorCode(env apikit.ErrorEnvelope) string {
	if env.ErrorCode == nil {
		return ""
	}
	return *env.ErrorCode
}
