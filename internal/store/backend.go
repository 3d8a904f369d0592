// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// ErrNoData is returned by Backend.Load when nothing has been stored yet.
var ErrNoData = errors.New("no stored data")

// Backend durably stores the full credential set.
type Backend interface {
	// Load returns every stored user, or ErrNoData if nothing is stored.
	Load(ctx context.Context) ([]*auth.User, error)

	// Save replaces the stored set with users.
	Save(ctx context.Context, users []*auth.User) error

	// String describes the backend for logs.
	String() string
}

// Merger is implemented by backends that can apply changes without replacing
// the whole stored set. A store whose initial load failed writes through
// Merge so records it never saw are left intact.
type Merger interface {
	// Merge upserts users and deletes the removed usernames. Other stored
	// records are untouched.
	Merge(ctx context.Context, users []*auth.User, removed []string) error
}
