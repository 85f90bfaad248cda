package auth

import (
	"strings"
	"time"

	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/shard"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 30 * time.Minute
	DefaultAttemptWindow   = 30 * time.Minute
)

type LockoutPolicy struct {
	MaxAttempts int
	Lockout     time.Duration
	Window      time.Duration
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultLockoutDuration
	}
	if p.Window <= 0 {
		p.Window = DefaultAttemptWindow
	}
	return p
}

type attemptRecord struct {
	failures    int
	firstFailAt time.Time
	lockedUntil time.Time
}

// LockoutTracker counts failed logins per key. Entries expire lazily on the
// next access to the same key.
type LockoutTracker struct {
	records *shard.Map[attemptRecord]
	policy  LockoutPolicy
	clock   clock.Clock
}

func NewLockoutTracker(policy LockoutPolicy, clk clock.Clock) *LockoutTracker {
	if clk == nil {
		clk = clock.System()
	}
	return &LockoutTracker{
		records: shard.New[attemptRecord](),
		policy:  policy.withDefaults(),
		clock:   clk,
	}
}

// LockoutKey combines the login id and client address. The login id is
// lower-cased so "Alice" and "alice" share a counter.
func LockoutKey(loginID, ip string) string {
	key := strings.ToLower(strings.TrimSpace(loginID))
	if ip == "" {
		return key
	}
	return key + ":" + ip
}

// Locked returns the remaining lockout for key, or zero when the key may try.
func (t *LockoutTracker) Locked(key string) time.Duration {
	now := t.clock.Now()
	var remaining time.Duration
	t.records.Update(key, func(r attemptRecord, ok bool) (attemptRecord, bool) {
		if !ok {
			return r, false
		}
		if !r.lockedUntil.IsZero() {
			if now.Before(r.lockedUntil) {
				remaining = r.lockedUntil.Sub(now)
				return r, true
			}
			return r, false
		}
		if now.Sub(r.firstFailAt) >= t.policy.Window {
			return r, false
		}
		return r, true
	})
	return remaining
}

// RecordFailure counts one failure and reports whether it locked the key.
func (t *LockoutTracker) RecordFailure(key string) bool {
	now := t.clock.Now()
	var locked bool
	t.records.Update(key, func(r attemptRecord, ok bool) (attemptRecord, bool) {
		switch {
		case !ok:
			r = attemptRecord{firstFailAt: now}
		case !r.lockedUntil.IsZero():
			if now.Before(r.lockedUntil) {
				return r, true
			}
			r = attemptRecord{firstFailAt: now}
		case now.Sub(r.firstFailAt) >= t.policy.Window:
			r = attemptRecord{firstFailAt: now}
		}
		r.failures++
		if r.failures >= t.policy.MaxAttempts && r.lockedUntil.IsZero() {
			r.lockedUntil = now.Add(t.policy.Lockout)
			locked = true
		}
		return r, true
	})
	return locked
}

func (t *LockoutTracker) Reset(key string) {
	t.records.Delete(key)
}

// RemainingMinutes rounds a lockout up to whole minutes.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
