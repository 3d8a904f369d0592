// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// FallbackAdminPassword is used to bootstrap the admin account when no
// password is configured.
//
//nolint:gosec // G101: documented default, operators are warned at startup.
const FallbackAdminPassword = "Admin@123"

// Dummy credentials verified when a username is unknown so that response
// time does not reveal whether the account exists. They never match.
var (
	dummyDigest = strings.Repeat("0", 2*keyLen)
	dummySalt   = strings.Repeat("0", 2*saltLen)
)

// Clock returns the current time.
type Clock func() time.Time

// Sessions is the session lifecycle the service depends on.
type Sessions interface {
	Issue(ctx context.Context, username, role string) (*session.Session, string, error)
	Validate(ctx context.Context, token string) (*session.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, username string) (int, error)
}

// ServiceConfig holds the dependencies of a Service.
// Zero-valued policies select their defaults.
type ServiceConfig struct {
	Users    UserRepository
	Sessions Sessions
	Hasher   PasswordHasher
	Policy   PasswordPolicy
	Lockout  LockoutPolicy
	Clock    Clock
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Service provides authentication and user management operations.
type Service struct {
	users    UserRepository
	sessions Sessions
	hasher   PasswordHasher
	policy   PasswordPolicy
	lockout  LockoutPolicy
	clock    Clock
	logger   *slog.Logger
	metrics  *Metrics
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if cfg.Sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	s := &Service{
		users:    cfg.Users,
		sessions: cfg.Sessions,
		hasher:   cfg.Hasher,
		policy:   cfg.Policy,
		lockout:  cfg.Lockout,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if s.policy == (PasswordPolicy{}) {
		s.policy = DefaultPasswordPolicy()
	}
	if s.lockout.MaxAttempts <= 0 {
		s.lockout.MaxAttempts = DefaultMaxFailedAttempts
	}
	if s.lockout.Duration <= 0 {
		s.lockout.Duration = DefaultLockoutDuration
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      Identity
}

// Bootstrap ensures the admin account exists. When it is absent it is
// created with password, or FallbackAdminPassword if password is empty.
// The chosen password must satisfy the password policy.
func (s *Service) Bootstrap(ctx context.Context, password string) error {
	existing, err := s.users.Get(ctx, AdminUsername)
	if err == nil {
		if existing.Role != RoleAdmin {
			if _, err := s.users.Update(ctx, AdminUsername, func(u *User) error {
				u.Role = RoleAdmin
				return nil
			}); err != nil {
				return oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "restore admin role").Wrap(err)
			}
			s.logger.WarnContext(ctx, "admin account had a non-admin role; restored")
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "get admin").Wrap(err)
	}

	if password == "" {
		password = FallbackAdminPassword
		s.logger.WarnContext(ctx, "no admin password configured, using the built-in fallback; change it after first login")
	}
	if err := s.policy.Check(password); err != nil {
		return oops.Code("AUTH_BOOTSTRAP_FAILED").
			Hint("set an admin password that satisfies the password policy").
			Wrap(err)
	}

	digest, salt, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "hash password").Wrap(err)
	}

	admin := &User{
		Username:     AdminUsername,
		PasswordHash: digest,
		Salt:         salt,
		Role:         RoleAdmin,
		CreatedAt:    s.clock(),
	}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, ErrAlreadyExists) {
		return oops.Code("AUTH_BOOTSTRAP_FAILED").With("operation", "create admin").Wrap(err)
	}

	s.logger.InfoContext(ctx, "admin account created")
	return nil
}

// Login verifies credentials, applies the lockout policy and issues a session.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, oops.Code(CodeInvalidInput).
			Public("Username and password are required").
			Errorf("username and password are required")
	}

	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	sess, token, err := s.sessions.Issue(ctx, user.Username, string(user.Role))
	if err != nil {
		s.metrics.attempt(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	// DeleteUser removes the record before revoking sessions, so a user that
	// still exists here will have this session revoked by any later delete.
	if _, err := s.users.Get(ctx, user.Username); err != nil {
		if revokeErr := s.sessions.Revoke(ctx, token); revokeErr != nil && Code(revokeErr) != session.CodeNotFound {
			errutil.LogError(s.logger, "failed to revoke session of deleted user", revokeErr)
		}
		if errors.Is(err, ErrNotFound) {
			s.metrics.attempt(outcomeInvalidCredentials)
			return nil, errInvalidCredentials()
		}
		s.metrics.attempt(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "confirm user").
			Wrap(err)
	}

	s.metrics.attempt(outcomeSuccess)
	s.logger.InfoContext(ctx, "login succeeded",
		"username", user.Username,
		"session_id", sess.ID.String(),
	)

	return &LoginResult{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      Identity{Username: user.Username, Role: user.Role},
	}, nil
}

// authenticate checks the lock, verifies the password and records the
// outcome. It is shared by Login and ChangePassword.
func (s *Service) authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			//nolint:errcheck // result discarded, only the time spent matters
			_, _ = s.hasher.Verify(password, dummyDigest, dummySalt)
			s.metrics.attempt(outcomeInvalidCredentials)
			return nil, errInvalidCredentials()
		}
		s.metrics.attempt(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user").
			Wrap(err)
	}

	// A locked account is rejected before its password is checked.
	if state := s.lockout.Check(user, s.clock()); state.Locked {
		s.metrics.attempt(outcomeLocked)
		return nil, errAccountLocked(state.Remaining)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash, user.Salt)
	if err != nil {
		s.metrics.attempt(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("username", username).
			Wrap(err)
	}
	if !valid {
		return nil, s.recordFailure(ctx, username)
	}

	updated, err := s.users.Update(ctx, username, func(u *User) error {
		s.lockout.RecordSuccess(u, s.clock())
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted between lookup and update.
			s.metrics.attempt(outcomeInvalidCredentials)
			return nil, errInvalidCredentials()
		}
		s.metrics.attempt(outcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "record success").
			Wrap(err)
	}
	return updated, nil
}

// recordFailure applies a failed attempt to the stored user and returns the
// error to report.
func (s *Service) recordFailure(ctx context.Context, username string) error {
	now := s.clock()
	var (
		state   LockState
		outcome FailureOutcome
	)
	_, err := s.users.Update(ctx, username, func(u *User) error {
		// Another request may have locked the account since the first check.
		if state = s.lockout.Check(u, now); state.Locked {
			return ErrNoChange
		}
		if outcome = s.lockout.RecordFailure(u, now); !outcome.Counted {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.attempt(outcomeInvalidCredentials)
			return errInvalidCredentials()
		}
		s.metrics.attempt(outcomeError)
		return oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "record failure").
			Wrap(err)
	}

	switch {
	case state.Locked:
		s.metrics.attempt(outcomeLocked)
		return errAccountLocked(state.Remaining)
	case outcome.Locked:
		s.metrics.attempt(outcomeLocked)
		s.metrics.lockout()
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			"username", username,
			"locked_until", outcome.LockedUntil,
		)
		return errLockedOut(s.lockout.Duration)
	case outcome.Counted:
		s.metrics.attempt(outcomeInvalidCredentials)
		return oops.Code(CodeInvalidCredentials).
			With(ContextRemainingAttempts, outcome.RemainingAttempts).
			Public("Invalid username or password").
			Errorf("invalid username or password")
	default:
		s.metrics.attempt(outcomeInvalidCredentials)
		return errInvalidCredentials()
	}
}

// Logout revokes the session for token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").Wrap(err)
	}
	return nil
}

// ValidateSession returns the identity bound to token.
func (s *Service) ValidateSession(ctx context.Context, token string) (Identity, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return Identity{}, oops.Code("AUTH_SESSION_REJECTED").Wrap(err)
	}
	return Identity{Username: sess.Username, Role: Role(sess.Role)}, nil
}

// ChangePassword replaces the password of the authenticated user. The
// current password is re-verified through the login path, so failures count
// toward lockout.
func (s *Service) ChangePassword(ctx context.Context, id Identity, current, next string) error {
	if current == "" || next == "" {
		return oops.Code(CodeInvalidInput).
			Public("Current password and new password are required").
			Errorf("current and new password are required")
	}
	if err := s.policy.Check(next); err != nil {
		return err
	}

	if _, err := s.authenticate(ctx, id.Username, current); err != nil {
		return err
	}

	if err := s.setPassword(ctx, id.Username, next); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", "username", id.Username)
	return nil
}

// ValidatePassword reports every policy rule candidate violates.
func (s *Service) ValidatePassword(candidate string) PolicyResult {
	return s.policy.Validate(candidate)
}

// ListUsers returns every user in outward form.
func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	now := s.clock()
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View(now))
	}
	return views, nil
}

// CreateUser adds a new user. An empty role selects RoleUser.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (UserView, error) {
	if err := ValidateUsername(username); err != nil {
		return UserView{}, err
	}
	if password == "" {
		return UserView{}, oops.Code(CodeInvalidInput).
			Public("Username and password are required").
			Errorf("password is required")
	}
	r, err := ParseRole(role)
	if err != nil {
		return UserView{}, err
	}
	if err := s.policy.Check(password); err != nil {
		return UserView{}, err
	}

	digest, salt, err := s.hasher.Hash(password)
	if err != nil {
		return UserView{}, oops.Code("USER_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	now := s.clock()
	user := &User{
		Username:     username,
		PasswordHash: digest,
		Salt:         salt,
		Role:         r,
		CreatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return UserView{}, oops.Code(CodeUserExists).
				With("username", username).
				Public("User already exists").
				Errorf("user %q already exists", username)
		}
		return UserView{}, oops.Code("USER_CREATE_FAILED").With("username", username).Wrap(err)
	}

	s.logger.InfoContext(ctx, "user created", "username", username, "role", string(r))
	return user.View(now), nil
}

// DeleteUser removes a user and revokes all of its sessions.
// The admin account cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if username == AdminUsername {
		return oops.Code(CodeUserProtected).
			Public("Cannot delete the admin user").
			Errorf("the admin account cannot be deleted")
	}

	if err := s.users.Delete(ctx, username); err != nil {
		return s.userLookupError(username, "USER_DELETE_FAILED", err)
	}

	revoked, err := s.sessions.RevokeUser(ctx, username)
	if err != nil {
		errutil.LogError(s.logger, "failed to revoke sessions of deleted user", err)
	}

	s.logger.InfoContext(ctx, "user deleted", "username", username, "sessions_revoked", revoked)
	return nil
}

// UnlockUser clears a user's lock and failure counter.
func (s *Service) UnlockUser(ctx context.Context, username string) error {
	if _, err := s.users.Update(ctx, username, func(u *User) error {
		s.lockout.Unlock(u)
		return nil
	}); err != nil {
		return s.userLookupError(username, "USER_UNLOCK_FAILED", err)
	}

	s.logger.InfoContext(ctx, "user unlocked", "username", username)
	return nil
}

// ResetPassword sets a new password for a user without knowing the old one.
func (s *Service) ResetPassword(ctx context.Context, username, password string) error {
	if password == "" {
		return oops.Code(CodeInvalidInput).
			Public("New password is required").
			Errorf("new password is required")
	}
	if err := s.policy.Check(password); err != nil {
		return err
	}
	if err := s.setPassword(ctx, username, password); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "username", username)
	return nil
}

func (s *Service) setPassword(ctx context.Context, username, password string) error {
	digest, salt, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("USER_PASSWORD_UPDATE_FAILED").With("operation", "hash password").Wrap(err)
	}
	if _, err := s.users.Update(ctx, username, func(u *User) error {
		u.PasswordHash = digest
		u.Salt = salt
		return nil
	}); err != nil {
		return s.userLookupError(username, "USER_PASSWORD_UPDATE_FAILED", err)
	}
	return nil
}

func (s *Service) userLookupError(username, code string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeUserNotFound).
			With("username", username).
			Public("User not found").
			Errorf("user %q not found", username)
	}
	return oops.Code(code).With("username", username).Wrap(err)
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).
		Public("Invalid username or password").
		Errorf("invalid username or password")
}

func errAccountLocked(remaining time.Duration) error {
	minutes := RetryMinutes(remaining)
	return oops.Code(CodeAccountLocked).
		With(ContextLocked, true).
		With(ContextRetryAfterMinutes, minutes).
		Public(lockedMessage("Account is locked. Try again in", minutes)).
		Errorf("account is locked for %d more minute(s)", minutes)
}

func errLockedOut(duration time.Duration) error {
	minutes := RetryMinutes(duration)
	return oops.Code(CodeAccountLocked).
		With(ContextLocked, true).
		With(ContextRemainingAttempts, 0).
		With(ContextRetryAfterMinutes, minutes).
		Public(lockedMessage("Account locked due to too many failed attempts. Try again in", minutes)).
		Errorf("account locked after too many failed attempts")
}

func lockedMessage(prefix string, minutes int) string {
	if minutes == 1 {
		return prefix + " 1 minute."
	}
	return fmt.Sprintf("%s %d minutes.", prefix, minutes)
}
