// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package access decides whether an inbound request may proceed.
//
// A Gate classifies each request as public, unauthenticated or
// authenticated from its path and Authorization header. Public paths are
// glob patterns matched with '/' as the separator, so "/healthz/*" matches
// "/healthz/liveness" but not "/healthz/a/b". Role checks compose on top of
// an authenticated identity via RequireRole.
package access

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DefaultPublicPaths are reachable without credentials.
var DefaultPublicPaths = []string{
	"/api/health",
	"/api/auth/login",
	"/api/auth/validate-password",
	"/healthz/*",
}

// DecisionKind is the outcome class of a gate decision.
type DecisionKind int

// Decision kinds.
const (
	Unauthenticated DecisionKind = iota
	Public
	Authenticated
)

func (k DecisionKind) String() string {
	switch k {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Decision is the result of Gate.Decide.
type Decision struct {
	Kind DecisionKind

	// Identity is set when Kind is Authenticated.
	Identity auth.Identity

	// Reason explains an Unauthenticated decision. Safe to log, never
	// contains the token.
	Reason string

	// Err is the coded cause of an Unauthenticated decision.
	Err error
}

// SessionValidator resolves a bearer token to an identity.
// auth.Service satisfies it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (auth.Identity, error)
}

// Gate decides access for inbound requests.
type Gate struct {
	validator SessionValidator
	public    []compiledPath
	logger    *slog.Logger
	responder Responder
}

// compiledPath holds a public path pattern and its compiled glob.
type compiledPath struct {
	pattern string
	glob    glob.Glob
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used for denied requests.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithResponder sets how the middleware writes rejections.
func WithResponder(r Responder) GateOption {
	return func(g *Gate) {
		if r != nil {
			g.responder = r
		}
	}
}

// NewGate creates a Gate. A nil publicPaths selects DefaultPublicPaths;
// an empty non-nil slice makes every path protected.
//
// Returns an error if any pattern fails to compile.
func NewGate(validator SessionValidator, publicPaths []string, opts ...GateOption) (*Gate, error) {
	if validator == nil {
		return nil, oops.In("access").Code("GATE_INVALID").Errorf("session validator is required")
	}
	if publicPaths == nil {
		publicPaths = DefaultPublicPaths
	}

	compiled := make([]compiledPath, 0, len(publicPaths))
	for _, p := range publicPaths {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.In("access").
				Code("INVALID_PATH_PATTERN").
				With("pattern", p).
				Wrap(err)
		}
		compiled = append(compiled, compiledPath{pattern: p, glob: g})
	}

	gate := &Gate{
		validator: validator,
		public:    compiled,
		logger:    slog.Default(),
		responder: WriteError,
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate, nil
}

// IsPublic reports whether path is on the public allow-list.
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.public {
		if p.glob.Match(path) {
			return true
		}
	}
	return false
}

// Decide classifies a request by path and raw Authorization header value.
func (g *Gate) Decide(ctx context.Context, path, authorization string) Decision {
	if g.IsPublic(path) {
		return Decision{Kind: Public}
	}

	if strings.TrimSpace(authorization) == "" {
		return unauthenticated("missing credentials", nil)
	}
	token, ok := BearerToken(authorization)
	if !ok {
		return unauthenticated("malformed authorization header", nil)
	}

	id, err := g.validator.ValidateSession(ctx, token)
	if err != nil {
		if auth.KindOf(err) != auth.KindUnauthorized {
			// Not a credential problem; surface it as-is.
			return Decision{Kind: Unauthenticated, Reason: "session validation failed", Err: err}
		}
		return unauthenticated("invalid or expired session", err)
	}
	return Decision{Kind: Authenticated, Identity: id}
}

func unauthenticated(reason string, cause error) Decision {
	builder := oops.In("access").
		Code(auth.CodeAuthRequired).
		With("reason", reason).
		Public("Authentication required")
	var err error
	if cause != nil {
		err = builder.Public(auth.PublicMessage(cause, "Authentication required")).Wrap(cause)
	} else {
		err = builder.New(reason)
	}
	return Decision{Kind: Unauthenticated, Reason: reason, Err: err}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is case-insensitive and exactly one non-empty
// token must follow it.
func BearerToken(authorization string) (string, bool) {
	fields := strings.Fields(authorization)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

// ErrForbidden is the sentinel wrapped by RequireRole failures.
var ErrForbidden = errors.New("forbidden")

// RequireRole rejects identities whose role is not role.
func RequireRole(id auth.Identity, role auth.Role) error {
	if id.Role == role {
		return nil
	}
	return oops.In("access").
		Code(auth.CodeForbidden).
		With("username", id.Username).
		With("required_role", string(role)).
		Public("Insufficient permissions").
		Wrap(ErrForbidden)
}
