// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Manager issues and validates sessions against a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	clock func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the session lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a Manager. A nil store selects a new MemoryStore.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a session for the user and returns it with the plaintext token.
func (m *Manager) Issue(ctx context.Context, username, role string) (*Session, string, error) {
	token, hash := GenerateToken()
	now := m.clock()
	s := &Session{
		ID:        ulid.Make(),
		TokenHash: hash,
		Username:  username,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("username", username).
			Wrap(err)
	}
	return s, token, nil
}

// Validate returns the session for token. Expired sessions are removed
// as a side effect.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenEmpty).
			Public("Authentication required").
			Errorf("session token cannot be empty")
	}

	hash := HashToken(token)
	s, err := m.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalid).
				Public("Invalid or expired session").
				Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if s.IsExpiredAt(m.clock()) {
		//nolint:errcheck // a concurrent sweep may already have removed it
		_ = m.store.Delete(ctx, hash)
		return nil, oops.Code(CodeExpired).
			With("session_id", s.ID.String()).
			Public("Invalid or expired session").
			Errorf("session has expired")
	}

	return s, nil
}

// Revoke deletes the session for token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code(CodeTokenEmpty).
			Public("Authentication required").
			Errorf("session token cannot be empty")
	}
	if err := m.store.Delete(ctx, HashToken(token)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).
				Public("Session not found").
				Wrap(err)
		}
		return oops.Code("SESSION_REVOKE_FAILED").Wrap(err)
	}
	return nil
}

// RevokeUser deletes every session of username and returns how many were removed.
func (m *Manager) RevokeUser(ctx context.Context, username string) (int, error) {
	n, err := m.store.DeleteByUsername(ctx, username)
	if err != nil {
		return n, oops.Code("SESSION_REVOKE_FAILED").With("username", username).Wrap(err)
	}
	return n, nil
}

// Sweep removes all expired sessions and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.clock())
	if err != nil {
		return n, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

// Count returns the number of live and not yet swept sessions.
func (m *Manager) Count(ctx context.Context) int {
	return m.store.Len(ctx)
}
