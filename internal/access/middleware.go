// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package access

import (
	"encoding/json"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Responder writes an error response for a rejected request.
type Responder func(w http.ResponseWriter, r *http.Request, err error)

// WriteError is the default Responder. It answers
// {"success":false,"error":<public message>} with 401, 403 or 500.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch auth.KindOf(err) {
	case auth.KindUnauthorized:
		status = http.StatusUnauthorized
		msg = auth.PublicMessage(err, "Authentication required")
	case auth.KindForbidden:
		status = http.StatusForbidden
		msg = auth.PublicMessage(err, "Insufficient permissions")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client disconnects are not actionable
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

// Middleware enforces the gate. Authenticated requests continue with the
// identity attached to their context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		d := g.Decide(ctx, r.URL.Path, r.Header.Get("Authorization"))
		switch d.Kind {
		case Public:
			next.ServeHTTP(w, r)
		case Authenticated:
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, d.Identity)))
		default:
			g.logger.DebugContext(ctx, "request rejected",
				"path", r.URL.Path,
				"reason", d.Reason,
			)
			g.responder(w, r, d.Err)
		}
	})
}

// RequireRoleMiddleware rejects requests whose identity lacks role. It must
// run behind Gate.Middleware. A nil respond selects WriteError.
func RequireRoleMiddleware(role auth.Role, respond Responder) func(http.Handler) http.Handler {
	if respond == nil {
		respond = WriteError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				respond(w, r, unauthenticated("no identity on request", nil).Err)
				return
			}
			if err := RequireRole(id, role); err != nil {
				respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
