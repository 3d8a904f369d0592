// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"
)

// Lockout defaults.
const (
	// DefaultMaxFailedAttempts is the number of consecutive failures that locks an account.
	DefaultMaxFailedAttempts = 6

	// DefaultLockoutDuration is how long an account stays locked.
	DefaultLockoutDuration = 30 * time.Minute
)

// LockoutPolicy drives the Active -> Locked -> Active transitions of a user.
// Admins are exempt: they are never counted and never locked.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy returns the standard lockout policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: DefaultMaxFailedAttempts,
		Duration:    DefaultLockoutDuration,
	}
}

// LockState describes whether a user is locked at a point in time.
type LockState struct {
	Locked    bool
	Remaining time.Duration
}

// FailureOutcome is the result of recording a failed attempt.
type FailureOutcome struct {
	// Counted is false for exempt users.
	Counted bool

	// Locked is true when this failure triggered the lock.
	Locked bool

	// RemainingAttempts is MaxAttempts minus the new failure count.
	RemainingAttempts int

	LockedUntil *time.Time
}

// Check reports the lock state of u at now.
func (p LockoutPolicy) Check(u *User, now time.Time) LockState {
	if u.IsAdmin() || !u.IsLockedAt(now) {
		return LockState{}
	}
	return LockState{Locked: true, Remaining: u.LockedUntil.Sub(now)}
}

// ExpireStale clears a lock whose time has passed, resetting the counter.
// Reports whether u changed.
func (p LockoutPolicy) ExpireStale(u *User, now time.Time) bool {
	if u.LockedUntil == nil || u.LockedUntil.After(now) {
		return false
	}
	u.LockedUntil = nil
	u.FailedAttempts = 0
	return true
}

// RecordFailure counts a failed attempt against u and locks it once the
// count reaches MaxAttempts.
func (p LockoutPolicy) RecordFailure(u *User, now time.Time) FailureOutcome {
	if u.IsAdmin() {
		return FailureOutcome{}
	}

	p.ExpireStale(u, now)
	u.FailedAttempts++

	out := FailureOutcome{Counted: true, RemainingAttempts: max(p.MaxAttempts-u.FailedAttempts, 0)}
	if u.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		u.LockedUntil = &until
		out.Locked = true
		out.LockedUntil = &until
	}
	return out
}

// RecordSuccess resets the failure counter and lock and stamps the login time.
func (p LockoutPolicy) RecordSuccess(u *User, now time.Time) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	t := now
	u.LastLogin = &t
}

// Unlock clears the lock and counter regardless of elapsed time.
func (p LockoutPolicy) Unlock(u *User) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// RetryMinutes rounds a remaining lock duration up to whole minutes.
func RetryMinutes(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	return max(int((ms+59_999)/60_000), 1)
}
