// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, s *Server, path string) (int, probeResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp probeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	s := NewServer("", WithCheck("broken", func(context.Context) error {
		return errors.New("never consulted")
	}))

	code, resp := getHealth(t, s, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadiness(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		opts       []Option
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checks is ready",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all checks pass",
			opts:       []Option{WithCheck("started", healthy), WithCheck("store", healthy)},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"started": "ok", "store": "ok"},
		},
		{
			name:       "one failing check",
			opts:       []Option{WithCheck("started", healthy), WithCheck("store", failing)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
			wantChecks: map[string]string{"started": "ok", "store": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("", tt.opts...)
			code, resp := getHealth(t, s, "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantChecks == nil {
				assert.Empty(t, resp.Checks)
			} else {
				assert.Equal(t, tt.wantChecks, resp.Checks)
			}
		})
	}
}

func TestReadiness_CheckHasDeadline(t *testing.T) {
	var hadDeadline bool
	s := NewServer("", WithCheck("store", func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}))

	code, _ := getHealth(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, hadDeadline)
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer("")
	s.Metrics().ObserveRequest("/api/auth/login", http.StatusUnauthorized, time.Millisecond)
	s.Metrics().ObserveRequest("/api/auth/login", http.StatusUnauthorized, time.Millisecond)
	s.Metrics().ObserveRequest("/api/users", http.StatusOK, time.Millisecond)

	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "gatehouse_test_total", Help: "test"})
	s.Registerer().MustRegister(extra)
	extra.Inc()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `gatehouse_http_requests_total{route="/api/auth/login",status="401"} 2`)
	assert.Contains(t, body, `gatehouse_http_requests_total{route="/api/users",status="200"} 1`)
	assert.Contains(t, body, "gatehouse_test_total 1")
}

func TestServer_Lifecycle(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	assert.Empty(t, s.Addr())

	errCh, err := s.Start()
	require.NoError(t, err)
	require.NotEmpty(t, s.Addr())

	_, err = s.Start()
	require.Error(t, err, "double start")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"ok"`))
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		assert.False(t, ok && err != nil, "unexpected serve error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel did not close")
	}
}

func TestServer_ReportsServeErrors(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	errCh, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.NoError(t, s.listener.Close())

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("serve error was not reported")
	}
}

func TestServer_ListenFailure(t *testing.T) {
	first := NewServer("127.0.0.1:0")
	_, err := first.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second := NewServer(first.Addr())
	_, err = second.Start()
	require.Error(t, err)
	assert.NoError(t, second.Stop(context.Background()))
}

func TestMetrics_NilIsNoop(_ *testing.T) {
	var m *Metrics
	m.ObserveRequest("/api/health", http.StatusOK, time.Millisecond)
}
