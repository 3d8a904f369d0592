// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/api"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/store"
)

const adminPassword = "Admin@123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stack is a fully wired API over a file-backed credential store.
type stack struct {
	handler  http.Handler
	clock    *testClock
	service  *auth.Service
	sessions *session.Manager
	metrics  *observability.Metrics
}

func newStack(dir string) (*stack, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}

	users := store.Open(ctx, store.NewFileBackend(filepath.Join(dir, "users.json")),
		store.WithClock(clock.Now),
		store.WithLogger(logger),
	)
	sessions := session.NewManager(session.NewMemoryStore(), session.WithClock(clock.Now))

	svc, err := auth.NewService(auth.ServiceConfig{
		Users:    users,
		Sessions: sessions,
		Hasher:   auth.NewPBKDF2Hasher(1),
		Clock:    clock.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.Bootstrap(ctx, ""); err != nil {
		return nil, err
	}

	gate, err := access.NewGate(svc, nil,
		access.WithLogger(logger),
		access.WithResponder(api.ErrorResponder(logger)),
	)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler, err := api.NewRouter(api.Config{
		Service: svc,
		Gate:    gate,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	return &stack{
		handler:  handler,
		clock:    clock,
		service:  svc,
		sessions: sessions,
		metrics:  metrics,
	}, nil
}

// do sends a request through the handler. A non-nil body is JSON encoded;
// a string body is sent verbatim.
func (s *stack) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// login returns the token for a successful login, or "".
func (s *stack) login(username, password string) string {
	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		return ""
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		return ""
	}
	return resp.Token
}

func decodeMap(rec *httptest.ResponseRecorder) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		panic(err)
	}
	return m
}
