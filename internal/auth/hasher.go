// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Changing Iterations invalidates every stored digest.
const (
	DefaultIterations = 50_000
	saltLen           = 16 // 128 bits
	keyLen            = 64
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code(CodeEmptyPassword).
	Public("Password is required").
	Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash derives a digest from the password with a fresh random salt.
	Hash(password string) (digest, salt string, err error)

	// Verify checks if the password matches the digest and salt.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a malformed digest.
	Verify(password, digest, salt string) (bool, error)
}

// PBKDF2Hasher implements PasswordHasher using PBKDF2-HMAC-SHA512.
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher creates a hasher with the given iteration count.
// Non-positive values select DefaultIterations.
func NewPBKDF2Hasher(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &PBKDF2Hasher{iterations: iterations}
}

// Hash derives a hex-encoded digest and salt for the password.
func (h *PBKDF2Hasher) Hash(password string) (string, string, error) {
	if password == "" {
		return "", "", ErrEmptyPassword
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := pbkdf2.Key([]byte(password), salt, h.iterations, keyLen, sha512.New)
	return hex.EncodeToString(digest), hex.EncodeToString(salt), nil
}

// Verify recomputes the digest and compares it in constant time.
func (h *PBKDF2Hasher) Verify(password, digest, salt string) (bool, error) {
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false, oops.Code(CodeInvalidHash).With("field", "digest").Wrap(err)
	}
	if len(expected) == 0 {
		return false, oops.Code(CodeInvalidHash).Errorf("digest is empty")
	}
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return false, oops.Code(CodeInvalidHash).With("field", "salt").Wrap(err)
	}

	computed := pbkdf2.Key([]byte(password), rawSalt, h.iterations, len(expected), sha512.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
