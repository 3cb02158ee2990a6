package apikit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/apikit"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	return line
}

func TestLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		level  string
	}{
		"success logs info": {
			status: http.StatusOK,
			level:  "INFO",
		},
		"client error logs warn": {
			status: http.StatusNotFound,
			level:  "WARN",
		},
		"server error logs error": {
			status: http.StatusBadGateway,
			level:  "ERROR",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := apikit.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("hello world response"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-log", nil))

			line := decodeLogLine(t, &buf)
			assert.Equal(t, "request", line["msg"])
			assert.Equal(t, tc.level, line["level"])
			assert.Equal(t, "GET", line["method"])
			assert.Equal(t, "/test-log", line["path"])
			assert.InDelta(t, tc.status, line["status"], 0)
			assert.InDelta(t, 20, line["size"], 0)
			assert.NotContains(t, line, "request_id")
		})
	}
}

func TestLogger_unwrap_response_controller(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := apikit.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rc := http.NewResponseController(w)
		_ = rc.Flush()
	}))

	rec := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/unwrap-test", nil)
	require.NoError(t, err)

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.Flushed)
	assert.Contains(t, buf.String(), "msg=request")
}

func TestLogger_in_server(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Get(a, "/widgets/{id}", nothing[byID]))
	}, apikit.Use(apikit.Logger(logger)))

	rec := serve(srv, http.MethodGet, "/widgets/w1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	line := decodeLogLine(t, &buf)
	assert.Equal(t, rec.Header().Get(apikit.RequestIDHeader), line["request_id"])
	assert.Equal(t, "/widgets/{id}", line["route"])
	assert.InDelta(t, http.StatusNoContent, line["status"], 0)
}

func TestLogger_unmatched_route_has_no_template(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	srv := newServer(t, func(a *apikit.API) {
		require.NoError(t, apikit.Get(a, "/widgets", listWidgets))
	}, apikit.Use(apikit.Logger(logger)))

	rec := serve(srv, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	line := decodeLogLine(t, &buf)
	assert.Equal(t, "WARN", line["level"])
	assert.NotContains(t, line, "route")
	assert.Contains(t, line, "request_id")
}
