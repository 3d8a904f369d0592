// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/access"
	"github.com/gatehouse/gatehouse/internal/auth"
)

type handlers struct {
	responder
	svc Service
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success           bool           `json:"success"`
	Token             string         `json:"token,omitempty"`
	ExpiresAt         *time.Time     `json:"expiresAt,omitempty"`
	User              *auth.Identity `json:"user,omitempty"`
	Error             string         `json:"error,omitempty"`
	Locked            *bool          `json:"locked,omitempty"`
	RemainingAttempts *int           `json:"remainingAttempts,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type validatePasswordRequest struct {
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type userResponse struct {
	Success bool          `json:"success"`
	User    auth.UserView `json:"user"`
}

type meResponse struct {
	User auth.Identity `json:"user"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.loginFailed(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     result.Token,
		ExpiresAt: &result.ExpiresAt,
		User:      &result.User,
	})
}

// loginFailed adds the lockout fields to the error body when the error
// carries them.
func (h *handlers) loginFailed(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.fail(w, r, err)
		return
	}

	locked := auth.KindOf(err) == auth.KindLocked
	resp := loginResponse{Error: auth.PublicMessage(err, http.StatusText(status))}
	if remaining, ok := auth.IntContext(err, auth.ContextRemainingAttempts); ok {
		resp.RemainingAttempts = &remaining
		resp.Locked = &locked
	}
	if locked {
		resp.Locked = &locked
		if minutes, ok := auth.IntContext(err, auth.ContextRetryAfterMinutes); ok {
			w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
		}
	}
	writeJSON(w, status, resp)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := access.BearerToken(r.Header.Get("Authorization"))
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: id})
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password changed successfully"})
}

func (h *handlers) validatePassword(w http.ResponseWriter, r *http.Request) {
	var req validatePasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ValidatePassword(req.Password))
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.svc.CreateUser(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{Success: true, User: user})
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUser(r.Context(), chi.URLParam(r, "username")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (h *handlers) unlockUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := h.svc.UnlockUser(r.Context(), username); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "User " + username + " unlocked"})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	username := chi.URLParam(r, "username")
	if err := h.svc.ResetPassword(r.Context(), username, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password reset for " + username})
}

// identity returns the identity the gate attached, answering 401 when absent.
func (h *handlers) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := access.IdentityFromContext(r.Context())
	if !ok {
		h.fail(w, r, oops.Code(auth.CodeAuthRequired).
			Public("Authentication required").
			Errorf("no identity on request"))
		return auth.Identity{}, false
	}
	return id, true
}
