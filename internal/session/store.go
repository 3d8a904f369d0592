// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no session matches a token hash.
var ErrNotFound = errors.New("session not found")

// Store holds issued sessions keyed by token hash.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by token hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session by token hash. Returns ErrNotFound if absent.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByUsername removes every session owned by username.
	DeleteByUsername(ctx context.Context, username string) (int, error)

	// DeleteExpired removes every session expired at now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Len returns the number of stored sessions.
	Len(ctx context.Context) int
}

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create stores a copy of s.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenHash] = s.clone()
	return nil
}

// Get returns a copy of the session with the given token hash.
func (m *MemoryStore) Get(_ context.Context, tokenHash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// Delete removes the session with the given token hash.
func (m *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, tokenHash)
	return nil
}

// DeleteByUsername removes every session owned by username.
func (m *MemoryStore) DeleteByUsername(_ context.Context, username string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for hash, s := range m.sessions {
		if s.Username == username {
			delete(m.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// DeleteExpired removes every session expired at now.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for hash, s := range m.sessions {
		if s.IsExpiredAt(now) {
			delete(m.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
