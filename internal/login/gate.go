package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/obs"
)

// AttemptStore owns the per-email attempt history. The gate never caches it
// across requests.
type AttemptStore interface {
	Attempts(ctx context.Context, email string) ([]Attempt, error)
	Record(ctx context.Context, attempt Attempt) error
	Clear(ctx context.Context, email string) error
}

// UserStore resolves accounts and applies the login side effects.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	Activate(ctx context.Context, userID string) error
}

// Request carries one login attempt through the gate.
type Request struct {
	Email        string
	Password     string
	ExpectedRole auth.Role
	ClientIP     string
	UserAgent    string
}

// Result is a fully successful login.
type Result struct {
	Session auth.Session
	User    *auth.User
}

// Gate authenticates (email, password, expectedRole) triples under the
// sliding-window rate limit.
type Gate struct {
	attempts AttemptStore
	users    UserStore
	sessions *auth.Sessions
	audit    *audit.Log
	policy   Policy
	now      func() time.Time
}

// GateOption configures Gate behavior.
type GateOption func(*Gate)

// WithPolicy overrides the default 5-per-15-minutes policy.
func WithPolicy(policy Policy) GateOption {
	return func(g *Gate) {
		if policy.Window > 0 && policy.MaxAttempts > 0 {
			g.policy = policy
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGate constructs the login gate.
func NewGate(attempts AttemptStore, users UserStore, sessions *auth.Sessions, auditLog *audit.Log, opts ...GateOption) (*Gate, error) {
	if attempts == nil || users == nil {
		return nil, errors.New("login: attempt and user stores are required")
	}
	if sessions == nil {
		return nil, errors.New("login: session issuer is required")
	}
	g := &Gate{
		attempts: attempts,
		users:    users,
		sessions: sessions,
		audit:    auditLog,
		policy:   DefaultPolicy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Attempt runs one login attempt. Domain rejections come back as typed
// errors (*RateLimitedError, *InvalidCredentialsError, *AccessDeniedError);
// anything else is an infrastructure failure the caller may retry.
func (g *Gate) Attempt(ctx context.Context, req Request) (*Result, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" || !req.ExpectedRole.Valid() {
		return nil, fmt.Errorf("%w: email, password and expected role are required", auth.ErrInvalidInput)
	}
	now := g.now().UTC()

	// Rate-limit reads fail closed: without the limiter state the gate must
	// not authenticate at all.
	history, err := g.attempts.Attempts(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: rate limit state unavailable: %w", err)
	}
	limit := Compute(history, now, g.policy)
	if limit.Locked {
		return nil, &RateLimitedError{Limit: limit}
	}

	user, err := g.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return nil, g.fail(ctx, email, req, history, now)
	case err != nil:
		return nil, fmt.Errorf("login: user lookup: %w", err)
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return nil, g.fail(ctx, email, req, history, now)
	}

	// Credentials are valid; the persisted role decides access, not the
	// caller's claim. A wrong-portal hit counts as a failure so the window
	// cannot be probed role by role, but the answer stays AccessDenied even
	// when that failure trips the lock.
	if user.Role != req.ExpectedRole || user.Status == auth.StatusSuspended || user.Status == auth.StatusArchived {
		g.recordFailure(ctx, email, req, history, now)
		return nil, &AccessDeniedError{ExpectedRole: string(req.ExpectedRole)}
	}

	// Full success: reset the window, then record the side effects. None of
	// these writes may block the decision already made.
	if err := g.attempts.Clear(ctx, email); err != nil {
		g.logWriteFailure(email, "clear attempts", err)
	}
	g.record(ctx, Attempt{Email: email, IPAddress: req.ClientIP, UserAgent: req.UserAgent, At: now, Success: true})
	if err := g.users.RecordLogin(ctx, user.ID, now); err != nil {
		g.logWriteFailure(email, "record last login", err)
	}
	if user.Status == auth.StatusInvited {
		if err := g.users.Activate(ctx, user.ID); err != nil {
			g.logWriteFailure(email, "activate invited user", err)
		} else {
			user.Status = auth.StatusActive
		}
	}
	last := now
	user.LastLoginAt = &last

	session, err := g.sessions.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("login: issue session: %w", err)
	}

	if g.audit != nil {
		g.audit.Record(ctx, audit.Event{
			ActorUserID: user.ID,
			ActorRole:   string(user.Role),
			Action:      "LOGIN_SUCCESS",
			TargetType:  "user",
			TargetID:    user.ID,
			Payload: map[string]any{
				"ip_address": req.ClientIP,
			},
		})
	}
	return &Result{Session: session, User: user}, nil
}

// fail appends a failure record and returns the right rejection: RateLimited
// when this failure tripped the lock, InvalidCredentials otherwise.
func (g *Gate) fail(ctx context.Context, email string, req Request, history []Attempt, now time.Time) error {
	limit := g.recordFailure(ctx, email, req, history, now)
	if limit.Locked {
		return &RateLimitedError{Limit: limit, LockedNow: true}
	}
	return &InvalidCredentialsError{AttemptsRemaining: limit.MaxAttempts - limit.AttemptCount}
}

// recordFailure appends a failure record and returns the recomputed state.
// The state is computed locally so a failed write cannot soften the answer.
func (g *Gate) recordFailure(ctx context.Context, email string, req Request, history []Attempt, now time.Time) RateLimit {
	failure := Attempt{Email: email, IPAddress: req.ClientIP, UserAgent: req.UserAgent, At: now}
	g.record(ctx, failure)

	limit := Compute(append(history, failure), now, g.policy)
	if limit.Locked && g.audit != nil {
		g.audit.Record(ctx, audit.Event{
			ActorRole:  "system",
			Action:     "LOGIN_LOCKED_OUT",
			TargetType: "email",
			TargetID:   email,
			Payload: map[string]any{
				"attempts":   limit.AttemptCount,
				"ip_address": req.ClientIP,
			},
		})
	}
	return limit
}

func (g *Gate) record(ctx context.Context, attempt Attempt) {
	if err := g.attempts.Record(ctx, attempt); err != nil {
		g.logWriteFailure(attempt.Email, "record attempt", err)
	}
}

func (g *Gate) logWriteFailure(email, op string, err error) {
	obs.LogRequest(map[string]any{
		"ts":    g.now().UTC().Format(time.RFC3339Nano),
		"level": "error",
		"msg":   "login gate write failed",
		"op":    op,
		"email": email,
		"error": err.Error(),
	})
}

// NormalizeEmail lowers and trims an email so attempts for the same mailbox
// share one rate-limit key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
