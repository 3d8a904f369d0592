// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store provides the credential store and its durable backends.
//
// CredentialStore keeps every user in memory and mirrors the full set to a
// Backend after each mutation. Memory is authoritative: a failed write is
// logged and counted, never returned to the caller. If the initial load
// fails the store is degraded and never replaces the stored set wholesale.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// CredentialStore implements auth.UserRepository over an in-memory map.
// It is safe for concurrent use.
type CredentialStore struct {
	mu      sync.RWMutex
	users   map[string]*auth.User
	backend Backend
	clock   func() time.Time
	logger  *slog.Logger

	// set when the initial load failed; writes go through Merger if the
	// backend supports it
	degraded bool

	// nil if no registry provided
	persistFailures prometheus.Counter
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithClock sets the time source used when sanitising persisted records.
func WithClock(clock func() time.Time) Option {
	return func(s *CredentialStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegisterer registers a persistence failure counter.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *CredentialStore) {
		if reg == nil {
			return
		}
		s.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_store_persist_failures_total",
			Help: "Total number of failed writes of the credential set",
		})
		reg.MustRegister(s.persistFailures)
	}
}

// Open loads the credential set from backend. If nothing is stored the store
// starts empty and persists an empty set. If the load fails the store starts
// empty without writing and is marked degraded. Open never fails.
func Open(ctx context.Context, backend Backend, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		users:   make(map[string]*auth.User),
		backend: backend,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	users, err := backend.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoData) {
			errutil.LogError(s.logger, "failed to load credentials, starting empty", err)
			s.degraded = true
			return s
		}

		s.logger.InfoContext(ctx, "no stored credentials, starting empty", "backend", backend.String())
		s.mu.Lock()
		s.persistLocked(ctx)
		s.mu.Unlock()
		return s
	}

	for _, u := range users {
		s.users[u.Username] = u.Clone()
	}
	s.logger.InfoContext(ctx, "credentials loaded", "users", len(s.users), "backend", backend.String())
	return s
}

// Get returns a copy of the user.
func (s *CredentialStore) Get(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u.Clone(), nil
}

// Create inserts a new user.
func (s *CredentialStore) Create(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return auth.ErrAlreadyExists
	}
	s.users[user.Username] = user.Clone()
	s.persistLocked(ctx)
	return nil
}

// Put inserts or replaces a user.
func (s *CredentialStore) Put(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user.Clone()
	s.persistLocked(ctx)
	return nil
}

// Update applies fn to a copy of the stored user under the store lock and
// stores the result. A callback returning auth.ErrNoChange causes no write.
func (s *CredentialStore) Update(ctx context.Context, username string, fn func(*auth.User) error) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, auth.ErrNoChange) {
			return current.Clone(), nil
		}
		return nil, err
	}
	// The key is immutable.
	next.Username = username

	s.users[username] = next
	s.persistLocked(ctx)
	return next.Clone(), nil
}

// Delete removes a user.
func (s *CredentialStore) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, username)
	s.persistLocked(ctx, username)
	return nil
}

// List returns copies of all users ordered by username.
func (s *CredentialStore) List(_ context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(nil), nil
}

// Degraded reports whether the initial load failed.
func (s *CredentialStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Len returns the number of stored users.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// snapshotLocked returns sorted copies of all users, passed through
// transform when it is non-nil. Caller must hold s.mu.
func (s *CredentialStore) snapshotLocked(transform func(*auth.User)) []*auth.User {
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		c := u.Clone()
		if transform != nil {
			transform(c)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// persistLocked writes the full set to the backend. removed names the users
// deleted by this mutation. Caller must hold s.mu for writing, which keeps
// snapshots ordered.
func (s *CredentialStore) persistLocked(ctx context.Context, removed ...string) {
	now := s.clock()
	snapshot := s.snapshotLocked(func(u *auth.User) { sanitize(u, now) })

	// A cancelled request must not abort the write.
	ctx = context.WithoutCancel(ctx)
	var err error
	if merger, ok := s.backend.(Merger); ok && s.degraded {
		err = merger.Merge(ctx, snapshot, removed)
	} else {
		err = s.backend.Save(ctx, snapshot)
	}
	if err != nil {
		if s.persistFailures != nil {
			s.persistFailures.Inc()
		}
		errutil.LogError(s.logger, "failed to persist credentials", err)
	}
}

// sanitize prepares a record for durable storage: a failure counter is kept
// only while the account is locked.
func sanitize(u *auth.User, now time.Time) {
	if u.IsLockedAt(now) {
		return
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
}
