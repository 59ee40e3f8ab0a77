package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
	"memorio.org/internal/ids"
	"memorio.org/internal/notify"
	"memorio.org/internal/obs"
)

// Store is everything the balancer needs from persistence. The
// at-most-one-active-assignment invariant is enforced by the store at write
// time; CreateAssignment returns ErrConflict when it would be violated.
type Store interface {
	FindCase(ctx context.Context, id string) (*cases.Case, error)
	ActiveAssignment(ctx context.Context, caseID string) (*Assignment, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	UpdateCaseStatus(ctx context.Context, caseID string, from, to cases.Status, at time.Time) error
	ListEditors(ctx context.Context) ([]Candidate, error)
	ActiveAssignmentCount(ctx context.Context, editorID string) (int, error)
	ActiveAdminEmails(ctx context.Context) ([]string, error)
}

// Result is the outcome of an assignment request. AlreadyAssigned and
// Unassigned are valid outcomes, not errors.
type Result struct {
	Assigned        bool
	AlreadyAssigned bool
	EditorID        string
	EditorName      string
	ActiveCount     int
}

// Balancer assigns the least-loaded eligible editor to a submitted case.
type Balancer struct {
	store    Store
	ranker   Ranker
	notifier notify.Sink
	audit    *audit.Log
	now      func() time.Time
}

// BalancerOption configures Balancer behavior.
type BalancerOption func(*Balancer)

// WithRanker overrides the capability-detected ranker.
func WithRanker(r Ranker) BalancerOption {
	return func(b *Balancer) {
		if r != nil {
			b.ranker = r
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) BalancerOption {
	return func(b *Balancer) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBalancer constructs the balancer.
func NewBalancer(store Store, notifier notify.Sink, auditLog *audit.Log, opts ...BalancerOption) (*Balancer, error) {
	if store == nil {
		return nil, errors.New("assign: store is required")
	}
	b := &Balancer{
		store:    store,
		ranker:   NewRanker(store),
		notifier: notifier,
		audit:    auditLog,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Assign picks an editor for the case, exactly once. The requesting
// principal must be the family member bound to the case.
func (b *Balancer) Assign(ctx context.Context, caseID string, principal auth.Principal) (*Result, error) {
	c, err := b.store.FindCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.AssignedFamilyUserID == "" || c.AssignedFamilyUserID != principal.UserID {
		return nil, ErrForbidden
	}

	// Idempotent re-entry: a case with an active assignment keeps it.
	existing, err := b.store.ActiveAssignment(ctx, caseID)
	if err != nil && !errors.Is(err, cases.ErrNotFound) {
		return nil, fmt.Errorf("assign: check existing assignment: %w", err)
	}
	if existing.Active() {
		return &Result{Assigned: true, AlreadyAssigned: true, EditorID: existing.EditorUserID}, nil
	}

	candidates, err := b.ranker.Rank(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign: rank editors: %w", err)
	}
	if len(candidates) == 0 {
		b.escalate(ctx, c)
		return &Result{Assigned: false}, nil
	}
	selected := candidates[0]

	now := b.now().UTC()
	assignment := &Assignment{
		ID:           ids.New(),
		CaseID:       caseID,
		EditorUserID: selected.ID,
		AssignedBy:   principal.UserID,
		AssignedAt:   now,
	}
	if err := b.store.CreateAssignment(ctx, assignment); err != nil {
		// A concurrent request won the race; surface its assignment.
		if errors.Is(err, ErrConflict) {
			winner, findErr := b.store.ActiveAssignment(ctx, caseID)
			if findErr == nil && winner.Active() {
				return &Result{Assigned: true, AlreadyAssigned: true, EditorID: winner.EditorUserID}, nil
			}
		}
		return nil, fmt.Errorf("assign: create assignment: %w", err)
	}

	// The assignment is the authoritative side effect. A failed status
	// advance leaves a repairable inconsistency, not a failed assignment.
	if cases.CanTransition(c.Status, cases.StatusInProduction) {
		if err := b.store.UpdateCaseStatus(ctx, caseID, c.Status, cases.StatusInProduction, now); err != nil {
			b.logWarn(caseID, "case status advance failed", err)
		}
	} else {
		b.logWarn(caseID, "case not in a submittable status, leaving status untouched", nil)
	}

	if b.audit != nil {
		b.audit.Record(ctx, audit.Event{
			ActorUserID: principal.UserID,
			ActorRole:   string(principal.Role),
			Action:      "AUTO_ASSIGN_EDITOR",
			TargetType:  "case",
			TargetID:    caseID,
			Payload: map[string]any{
				"editor_id":         selected.ID,
				"editor_email":      selected.Email,
				"deceased_name":     c.DeceasedName,
				"active_case_count": selected.ActiveCount,
			},
		})
	}

	return &Result{
		Assigned:    true,
		EditorID:    selected.ID,
		EditorName:  selected.DisplayName(),
		ActiveCount: selected.ActiveCount,
	}, nil
}

// escalate raises the no-editors degradation path: notify every active
// admin and leave the case where it is for a later retry. Failures here are
// logged, never propagated; the Unassigned outcome stands either way.
func (b *Balancer) escalate(ctx context.Context, c *cases.Case) {
	admins, err := b.store.ActiveAdminEmails(ctx)
	if err != nil || len(admins) == 0 {
		b.logWarn(c.ID, "no admin recipients for no-editors notification", err)
		return
	}

	if b.notifier != nil {
		n := &notify.Notification{
			CaseID:     c.ID,
			EventType:  notify.EventNoEditorsAvailable,
			Recipients: admins,
			Status:     notify.StatusPending,
			CreatedAt:  b.now().UTC(),
		}
		if err := b.notifier.Enqueue(ctx, n); err != nil {
			b.logWarn(c.ID, "admin notification write failed", err)
		}
	}

	if b.audit != nil {
		b.audit.Record(ctx, audit.Event{
			ActorRole:  "system",
			Action:     "NO_EDITORS_AVAILABLE",
			TargetType: "case",
			TargetID:   c.ID,
			Payload: map[string]any{
				"deceased_name": c.DeceasedName,
				"admin_emails":  admins,
			},
		})
	}
}

func (b *Balancer) logWarn(caseID, msg string, err error) {
	entry := map[string]any{
		"ts":      b.now().UTC().Format(time.RFC3339Nano),
		"level":   "warn",
		"msg":     msg,
		"case_id": caseID,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	obs.LogRequest(entry)
}
