// Package login implements the rate-limited authentication gate. The limiter
// is enforced here, server-side, on every call path; a client-side limit
// would be trivially bypassed.
package login

import (
	"time"
)

// Attempt is one recorded login attempt for an email key.
type Attempt struct {
	Email     string    `json:"email"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	At        time.Time `json:"at"`
	Success   bool      `json:"success"`
}

// Policy describes the sliding window applied per email key.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
}

// DefaultPolicy locks an email key after 5 failures within 15 minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxAttempts: 5}

// RateLimit is the lockout state derived from an attempt history. It is a
// value computed per request, never stored.
type RateLimit struct {
	AttemptCount     int  `json:"attempts"`
	MaxAttempts      int  `json:"max_attempts"`
	WindowMinutes    int  `json:"window_minutes"`
	MinutesRemaining int  `json:"minutes_remaining"`
	Locked           bool `json:"is_locked"`
}

// Compute derives the rate-limit state for a history of attempts at the given
// instant. Only failures inside the trailing window count; the key is locked
// while the count reaches the maximum, and unlocks when the oldest counted
// failure ages out of the window.
func Compute(attempts []Attempt, now time.Time, policy Policy) RateLimit {
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}

	cutoff := now.Add(-policy.Window)
	var count int
	var oldest time.Time
	for _, a := range attempts {
		if a.Success || !a.At.After(cutoff) {
			continue
		}
		count++
		if oldest.IsZero() || a.At.Before(oldest) {
			oldest = a.At
		}
	}

	limit := RateLimit{
		AttemptCount:  count,
		MaxAttempts:   policy.MaxAttempts,
		WindowMinutes: int(policy.Window / time.Minute),
	}
	if count >= policy.MaxAttempts {
		limit.Locked = true
		limit.MinutesRemaining = minutesUntil(oldest.Add(policy.Window), now)
	}
	return limit
}

// minutesUntil reports whole minutes from now until t, rounding up so the
// user-facing wait is never understated.
func minutesUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	return minutes
}
