// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const internalErrorMessage = "Internal server error"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// StatusFor maps an error to its HTTP status code by kind.
func StatusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindValidation, auth.KindPolicyViolation:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindLocked:
		return http.StatusLocked
	case auth.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client disconnects are not actionable
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorResponder returns the API's error writer, for use by middleware
// outside this package.
func ErrorResponder(logger *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}.fail
}

// responder writes error responses and logs internal failures.
type responder struct {
	logger *slog.Logger
}

// fail answers err with its mapped status. Internal errors are logged with
// their details and answered with a generic message.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), rs.logger, "request failed", err)
		writeJSON(w, status, errorResponse{Error: internalErrorMessage})
		return
	}

	writeJSON(w, status, errorResponse{
		Error:   auth.PublicMessage(err, http.StatusText(status)),
		Details: auth.Violations(err),
	})
}

// decode reads a JSON request body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(auth.CodeInvalidInput).
				Public("Request body too large").
				Wrap(err)
		}
		return oops.Code(auth.CodeInvalidInput).
			Public("Invalid request body").
			Wrap(err)
	}
	return nil
}
