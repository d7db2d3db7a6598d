package ratelimit

import "time"

// FailureKind classifies provider responses that trigger backoff.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited" // HTTP 429
	FailureServerError FailureKind = "server_error" // HTTP 5xx
	FailureForbidden   FailureKind = "forbidden"    // HTTP 403
)

const (
	serverErrorLock = 30 * time.Second
	forbiddenLock   = 30 * time.Minute

	// quotaShrinkFactor is applied to the hourly limit on every rate-limit
	// failure. The shrink is permanent; only SetLimits restores it.
	quotaShrinkFactor = 0.8
)

// backoffState carries one api's lock and its escalating delay. The delay
// never resets on success.
type backoffState struct {
	lockedUntil  time.Time
	currentDelay time.Duration
}

// locked reports whether the api is locked at now, and the exact remaining
// lock time.
func (b *backoffState) locked(now time.Time) (bool, time.Duration) {
	if now.Before(b.lockedUntil) {
		return true, b.lockedUntil.Sub(now)
	}
	return false, 0
}

// escalate applies the exponential policy: the first failure locks for
// base, each subsequent one doubles the delay, capped at max. Returns the
// applied delay.
func (b *backoffState) escalate(base, max time.Duration, now time.Time) time.Duration {
	d := b.currentDelay
	if d <= 0 {
		d = base
	} else {
		d *= 2
	}
	if d > max {
		d = max
	}
	b.currentDelay = d
	b.lockedUntil = now.Add(d)
	return d
}

// lockFor sets a fixed-duration lock without touching the delay.
func (b *backoffState) lockFor(d time.Duration, now time.Time) {
	b.lockedUntil = now.Add(d)
}
