// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package api serves the Gatehouse JSON HTTP API.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// Service is the authentication and user management surface the API exposes.
type Service interface {
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, id auth.Identity, current, next string) error
	ValidatePassword(candidate string) auth.PolicyResult
	ListUsers(ctx context.Context) ([]auth.UserView, error)
	CreateUser(ctx context.Context, username, password, role string) (auth.UserView, error)
	DeleteUser(ctx context.Context, username string) error
	UnlockUser(ctx context.Context, username string) error
	ResetPassword(ctx context.Context, username, password string) error
}

// Config holds the dependencies of the API router.
type Config struct {
	Service Service
	Gate    *access.Gate
	Logger  *slog.Logger

	// Metrics records request counts and durations. Optional.
	Metrics *observability.Metrics
}

// NewRouter builds the API handler. Every route sits behind the access gate;
// user administration additionally requires the admin role.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, oops.Errorf("service is required")
	}
	if cfg.Gate == nil {
		return nil, oops.Errorf("access gate is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{
		svc:       cfg.Service,
		responder: responder{logger: logger},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cfg.Gate.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Post("/change-password", h.changePassword)
			r.Post("/validate-password", h.validatePassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(access.RequireRoleMiddleware(auth.RoleAdmin, h.fail))
			r.Get("/", h.listUsers)
			r.Post("/", h.createUser)
			r.Delete("/{username}", h.deleteUser)
			r.Post("/{username}/unlock", h.unlockUser)
			r.Post("/{username}/reset-password", h.resetPassword)
		})
	})

	return r, nil
}
