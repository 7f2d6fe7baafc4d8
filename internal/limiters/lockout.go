package limiters

import (
	"time"

	"github.com/MrEthical07/nickauth/store"
)

// LockoutPolicy decides when repeated password failures lock an account.
// It only mutates the record it is given; persistence happens in the
// caller's store.Update closure.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Enabled reports whether the policy ever locks.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// IsLocked reports whether u is locked at now.
func (p LockoutPolicy) IsLocked(u *store.User, now time.Time) bool {
	return p.Enabled() && u.IsLocked(now)
}

// Failure records one failed attempt. The first failure after an expired
// lock restarts the count at one and never locks. Otherwise reaching
// Threshold sets LockUntil and reports true.
func (p LockoutPolicy) Failure(u *store.User, now time.Time) bool {
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LoginAttempts = 1
		u.LockUntil = nil
		return false
	}
	u.LoginAttempts++
	if !p.Enabled() || u.IsLocked(now) {
		return false
	}
	if u.LoginAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		u.LockUntil = &until
		return true
	}
	return false
}

// Success clears the failure counter and any lock.
func (p LockoutPolicy) Success(u *store.User) {
	u.LoginAttempts = 0
	u.LockUntil = nil
}

// RetryAfter returns how long u stays locked, or zero.
func (p LockoutPolicy) RetryAfter(u *store.User, now time.Time) time.Duration {
	if u.LockUntil == nil || !u.LockUntil.After(now) {
		return 0
	}
	return u.LockUntil.Sub(now)
}
