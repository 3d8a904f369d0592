// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/session"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating an entity whose key is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrNoChange is returned by an Update callback that left the user as it was.
// The repository then skips the write and Update succeeds.
var ErrNoChange = errors.New("no change")

// Error codes attached to errors returned by this package.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidUsername    = "AUTH_INVALID_USERNAME"
	CodeInvalidRole        = "AUTH_INVALID_ROLE"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUserExists         = "USER_EXISTS"
	CodeUserProtected      = "USER_PROTECTED"
	CodeForbidden          = "ACCESS_FORBIDDEN"
	CodeAuthRequired       = "ACCESS_AUTH_REQUIRED"
)

// Context keys carried by coded errors.
const (
	ContextViolations        = "violations"
	ContextRetryAfterMinutes = "retry_after_minutes"
	ContextRemainingAttempts = "remaining_attempts"
	ContextLocked            = "locked"
)

// Kind classifies an error for callers that need to react to it,
// such as the HTTP layer choosing a status code.
type Kind string

// Error kinds.
const (
	KindValidation      Kind = "validation"
	KindPolicyViolation Kind = "policy_violation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnauthorized    Kind = "unauthorized"
	KindLocked          Kind = "locked"
	KindForbidden       Kind = "forbidden"
	KindInternal        Kind = "internal"
)

var codeKinds = map[string]Kind{
	CodeInvalidInput:       KindValidation,
	CodeInvalidUsername:    KindValidation,
	CodeInvalidRole:        KindValidation,
	CodeEmptyPassword:      KindValidation,
	CodeWeakPassword:       KindPolicyViolation,
	CodeInvalidCredentials: KindUnauthorized,
	CodeAccountLocked:      KindLocked,
	CodeUserNotFound:       KindNotFound,
	CodeUserExists:         KindConflict,
	CodeUserProtected:      KindConflict,
	session.CodeTokenEmpty: KindUnauthorized,
	session.CodeInvalid:    KindUnauthorized,
	session.CodeExpired:    KindUnauthorized,
	session.CodeNotFound:   KindNotFound,
	CodeForbidden:          KindForbidden,
	CodeAuthRequired:       KindUnauthorized,
}

// KindOf returns the kind of err based on the deepest error code in its chain.
// Errors without a recognised code are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if kind, found := codeKinds[Code(err)]; found {
		return kind
	}
	return KindInternal
}

// Code returns the deepest string error code in err's chain, or "".
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string) //nolint:errcheck // non-string codes are ignored
	return code
}

// Violations returns the password policy violations carried by err, if any.
func Violations(err error) []string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	v, _ := oopsErr.Context()[ContextViolations].([]string) //nolint:errcheck // absent key yields nil
	return v
}

// IntContext returns the integer context value stored under key.
func IntContext(err error, key string) (int, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	v, found := oopsErr.Context()[key].(int)
	return v, found
}

// PublicMessage returns the user-safe message for err, or fallback when none is set.
func PublicMessage(err error, fallback string) string {
	return oops.GetPublic(err, fallback)
}
