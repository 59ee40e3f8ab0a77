// Package audit provides the append-only record of state-changing operations.
// Every login outcome, assignment and invite lands here; entries are never
// updated or deleted.
package audit

import (
	"context"
	"time"

	"memorio.org/internal/auth"
	"memorio.org/internal/ids"
	"memorio.org/internal/obs"
	"memorio.org/internal/stream"
)

// Event is a single immutable audit record.
type Event struct {
	ID          string         `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	ActorRole   string         `json:"actor_role,omitempty"`
	Action      string         `json:"action"`
	TargetType  string         `json:"target_type,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event *Event) error
}

// Log writes audit events to a sink, the shared JSON logger and, when
// configured, the live event feed. Sink failures are logged and swallowed:
// audit completeness never blocks a decision already made.
type Log struct {
	sink Sink
	feed *stream.Feed
	now  func() time.Time
}

// Option configures Log behavior.
type Option func(*Log)

// WithFeed publishes recorded events to the live feed.
func WithFeed(feed *stream.Feed) Option {
	return func(l *Log) { l.feed = feed }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Log. A nil sink is allowed; events then only reach the
// logger and feed.
func New(sink Sink, opts ...Option) *Log {
	l := &Log{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record fills in identity fields, enriches the event with the request
// principal when the actor is not set, and appends it.
func (l *Log) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now().UTC()
	}
	if event.ActorUserID == "" {
		if principal, ok := auth.PrincipalFromContext(ctx); ok {
			event.ActorUserID = principal.UserID
			if event.ActorRole == "" {
				event.ActorRole = string(principal.Role)
			}
		}
	}

	if l.sink != nil {
		if err := l.sink.Append(ctx, &event); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    l.now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "audit append failed",
				"event": event.Action,
				"error": err.Error(),
			})
		}
	}

	entry := map[string]any{
		"ts":     event.OccurredAt.Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event.Action,
		"target": event.TargetType + "/" + event.TargetID,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if event.ActorUserID != "" {
		entry["actor_user_id"] = event.ActorUserID
	}
	obs.LogRequest(entry)

	if l.feed != nil {
		l.feed.Publish(stream.Event{
			Action:     event.Action,
			ActorRole:  event.ActorRole,
			TargetType: event.TargetType,
			TargetID:   event.TargetID,
			Timestamp:  event.OccurredAt,
		})
	}
}
