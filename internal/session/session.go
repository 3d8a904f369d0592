// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package session issues, validates and expires opaque bearer session tokens.
//
// Tokens are 32 random bytes, hex-encoded. Only their SHA-256 hash is kept
// in memory, so a dump of the store cannot be replayed as credentials.
// Sessions live for the lifetime of the process.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session token configuration.
const (
	TokenBytes = 32             // 32 bytes = 64 hex chars
	DefaultTTL = 24 * time.Hour // 24 hour expiry
)

// Error codes returned by the session manager.
const (
	CodeTokenEmpty = "SESSION_TOKEN_EMPTY"
	CodeInvalid    = "SESSION_INVALID"
	CodeExpired    = "SESSION_EXPIRED"
	CodeNotFound   = "SESSION_NOT_FOUND"
)

// Session is an issued bearer session. Username and Role are a snapshot
// taken at issuance.
type Session struct {
	ID        ulid.ULID
	TokenHash string
	Username  string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the session is expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	c := *s
	return &c
}

// GenerateToken creates a random token and its hash.
// The plaintext token goes to the client; the hash is what the store keeps.
func GenerateToken() (token, hash string) {
	tokenBytes := make([]byte, TokenBytes)
	// crypto/rand.Read never returns an error since Go 1.24.
	_, _ = rand.Read(tokenBytes) //nolint:errcheck // see above

	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token)
}

// HashToken computes the SHA-256 hash of a session token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
