package pg

import (
	"context"
	"encoding/json"
	"time"

	"memorio.org/internal/audit"
	"memorio.org/internal/ids"
	"memorio.org/internal/notify"
)

// Append satisfies audit.Sink. The events table is append-only.
func (s *Store) Append(ctx context.Context, e *audit.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into events(id, occurred_at, actor_user_id, actor_role, action, target_type, target_id, payload)
		values ($1, $2, nullif($3,''), nullif($4,''), $5, nullif($6,''), nullif($7,''), $8)
	`, e.ID, e.OccurredAt, e.ActorUserID, e.ActorRole, e.Action, e.TargetType, e.TargetID, payload)
	return err
}

// Enqueue satisfies notify.Sink; rows are drained by an external delivery
// worker.
func (s *Store) Enqueue(ctx context.Context, n *notify.Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = notify.StatusPending
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into notifications(id, case_id, event_type, recipients, status, payload, created_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7)
	`, n.ID, n.CaseID, n.EventType, recipients, n.Status, payload, n.CreatedAt)
	return err
}
