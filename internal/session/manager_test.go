// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestManager_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := session.NewManager(nil, session.WithClock(clock.Now))

	s, token, err := m.Issue(ctx, "alice", "user")
	require.NoError(t, err)
	assert.Len(t, token, 2*session.TokenBytes)
	assert.Equal(t, session.HashToken(token), s.TokenHash)
	assert.Equal(t, clock.Now().Add(session.DefaultTTL), s.ExpiresAt)

	got, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "user", got.Role)
	assert.Equal(t, s.ID, got.ID)
}

func TestManager_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(nil)

	seen := map[string]bool{}
	for range 100 {
		_, token, err := m.Issue(ctx, "alice", "user")
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
	assert.Equal(t, 100, m.Count(ctx))
}

func TestManager_ValidateRejects(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := session.NewManager(nil, session.WithClock(clock.Now), session.WithTTL(time.Hour))

	_, token, err := m.Issue(ctx, "alice", "user")
	require.NoError(t, err)

	t.Run("empty token", func(t *testing.T) {
		_, err := m.Validate(ctx, "")
		errutil.AssertErrorCode(t, err, session.CodeTokenEmpty)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := m.Validate(ctx, "deadbeef")
		errutil.AssertErrorCode(t, err, session.CodeInvalid)
	})

	t.Run("expired token is removed", func(t *testing.T) {
		clock.Advance(time.Hour)
		_, err := m.Validate(ctx, token)
		errutil.AssertErrorCode(t, err, session.CodeExpired)
		assert.Equal(t, 0, m.Count(ctx))

		_, err = m.Validate(ctx, token)
		errutil.AssertErrorCode(t, err, session.CodeInvalid)
	})
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(nil)

	_, token, err := m.Issue(ctx, "alice", "user")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Validate(ctx, token)
	errutil.AssertErrorCode(t, err, session.CodeInvalid)

	errutil.AssertErrorCode(t, m.Revoke(ctx, token), session.CodeNotFound)
	errutil.AssertErrorCode(t, m.Revoke(ctx, ""), session.CodeTokenEmpty)
}

func TestManager_RevokeUser(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(nil)

	_, a1, err := m.Issue(ctx, "alice", "user")
	require.NoError(t, err)
	_, _, err = m.Issue(ctx, "alice", "user")
	require.NoError(t, err)
	_, b1, err := m.Issue(ctx, "bob", "user")
	require.NoError(t, err)

	n, err := m.RevokeUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.Validate(ctx, a1)
	require.Error(t, err)
	_, err = m.Validate(ctx, b1)
	require.NoError(t, err)
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := session.NewManager(nil, session.WithClock(clock.Now), session.WithTTL(time.Hour))

	_, _, err := m.Issue(ctx, "alice", "user")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, fresh, err := m.Issue(ctx, "bob", "user")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Validate(ctx, fresh)
	require.NoError(t, err)
}

func TestManager_Options(t *testing.T) {
	m := session.NewManager(nil, session.WithTTL(0), session.WithClock(nil))
	assert.Equal(t, session.DefaultTTL, m.TTL())

	m = session.NewManager(nil, session.WithTTL(2*time.Hour))
	assert.Equal(t, 2*time.Hour, m.TTL())
}

func TestHashToken(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		session.HashToken(""))
	token, hash := session.GenerateToken()
	assert.Equal(t, session.HashToken(token), hash)
	assert.NotEqual(t, token, hash)
}
