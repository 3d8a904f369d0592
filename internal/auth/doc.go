// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides authentication primitives for Gatehouse.
//
// # Domain Types
//
// A User is the durable credential record. Usernames are validated with
// ValidateUsername and roles with ParseRole before a record is stored.
// Password material is produced by a PasswordHasher and never leaves the
// package in outward views; use User.View for that.
//
// # Policies
//
//   - PasswordPolicy - complexity rules applied to new passwords
//   - LockoutPolicy - brute-force lockout transitions over a User
//
// Both are pure and take the current time explicitly.
//
// # Services
//
// Service coordinates the login flow, session lifecycle and administrative
// user management. It is created with NewService, which validates its
// dependencies.
//
// # Errors
//
// Errors carry a machine-readable code (see the Code* constants). KindOf maps
// a code onto the small set of kinds callers branch on.
package auth
