// Package notify is the outbound-notification boundary. The service records
// what must be sent and to whom; actual email delivery is an external
// collaborator that drains pending rows.
package notify

import (
	"context"
	"time"
)

// Event types understood by the delivery worker.
const (
	EventNoEditorsAvailable = "no_editors_available"
	EventUserInvited        = "user_invited"
)

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Notification is a queued operator or user notification.
type Notification struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"case_id,omitempty"`
	EventType  string         `json:"event_type"`
	Recipients []string       `json:"recipients"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Sink accepts notifications for later delivery.
type Sink interface {
	Enqueue(ctx context.Context, n *Notification) error
}
