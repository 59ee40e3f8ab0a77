package login

import "fmt"

// RateLimitedError reports that the email key is locked out. LockedNow
// distinguishes a lockout caused by the current attempt from one already in
// effect when the request arrived.
type RateLimitedError struct {
	Limit     RateLimit
	LockedNow bool
}

func (e *RateLimitedError) Error() string {
	if e.LockedNow {
		return fmt.Sprintf("invalid credentials; too many failed attempts, locked for %d %s",
			e.Limit.MinutesRemaining, plural(e.Limit.MinutesRemaining, "minute"))
	}
	return fmt.Sprintf("too many failed login attempts; try again in %d %s",
		e.Limit.MinutesRemaining, plural(e.Limit.MinutesRemaining, "minute"))
}

// InvalidCredentialsError reports a failed credential check without revealing
// whether the email exists.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return "invalid email or password"
}

// AccessDeniedError reports a successful credential check against the wrong
// portal, or a suspended/archived account.
type AccessDeniedError struct {
	ExpectedRole string
}

func (e *AccessDeniedError) Error() string {
	if e.ExpectedRole == "" {
		return "access denied"
	}
	return fmt.Sprintf("access denied: this portal is only for %s users", e.ExpectedRole)
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
