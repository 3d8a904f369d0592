// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/samber/oops"
)

// AdminUsername is the protected bootstrap account.
const AdminUsername = "admin"

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
)

// Role is a user's authorization role.
type Role string

// Roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a role name. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleUser, nil
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", oops.Code(CodeInvalidRole).
			With("role", s).
			Public("Role must be 'admin' or 'user'").
			Errorf("invalid role %q", s)
	}
}

// User is a credential record.
type User struct {
	Username       string     `json:"username"`
	PasswordHash   string     `json:"passwordHash"`
	Salt           string     `json:"salt"`
	Role           Role       `json:"role"`
	CreatedAt      time.Time  `json:"createdAt"`
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil"`
	LastLogin      *time.Time `json:"lastLogin"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsLockedAt reports whether the lock is still active at now.
func (u *User) IsLockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// UserView is the outward representation of a user for administrative listings.
type UserView struct {
	Username       string     `json:"username"`
	Role           Role       `json:"role"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastLogin      *time.Time `json:"lastLogin"`
	IsLocked       bool       `json:"isLocked"`
	FailedAttempts int        `json:"failedAttempts"`
}

// View returns the outward representation of u at now.
func (u *User) View(now time.Time) UserView {
	v := UserView{
		Username:       u.Username,
		Role:           u.Role,
		CreatedAt:      u.CreatedAt,
		IsLocked:       u.IsLockedAt(now),
		FailedAttempts: u.FailedAttempts,
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		v.LastLogin = &t
	}
	return v
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// ValidateUsername validates a username against rules.
// Usernames are case-sensitive, MinUsernameLength to MaxUsernameLength
// characters, and may not contain whitespace, control characters or '/'.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidUsername).
			Public("Username is required").
			Errorf("username cannot be empty")
	}
	if n := len([]rune(username)); n < MinUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			Public("Username must be at least 3 characters long").
			Errorf("username must be at least %d characters", MinUsernameLength)
	} else if n > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Public("Username must be at most 64 characters long").
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if strings.ContainsFunc(username, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || r == '/'
	}) {
		return oops.Code(CodeInvalidUsername).
			Public("Username may not contain spaces or '/'").
			Errorf("username contains forbidden characters")
	}
	return nil
}

// UserRepository manages credential records.
// Implementations must be safe for concurrent use and return copies.
type UserRepository interface {
	// Get retrieves a user by username. Returns ErrNotFound if absent.
	Get(ctx context.Context, username string) (*User, error)

	// Create inserts a new user. Returns ErrAlreadyExists if the username is taken.
	Create(ctx context.Context, user *User) error

	// Put inserts or replaces a user.
	Put(ctx context.Context, user *User) error

	// Update applies fn to the stored user atomically and stores the result.
	// Returns ErrNotFound if absent. If fn returns an error nothing is stored;
	// ErrNoChange is not reported to the caller, which gets the stored user.
	Update(ctx context.Context, username string, fn func(*User) error) (*User, error)

	// Delete removes a user. Returns ErrNotFound if absent.
	Delete(ctx context.Context, username string) error

	// List returns all users ordered by username.
	List(ctx context.Context) ([]*User, error)
}
