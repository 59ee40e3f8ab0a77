// Package cases holds the tribute case domain: the record a director opens
// for a deceased person, its status progression, and the intake operations
// performed on it.
package cases

import (
	"errors"
	"time"
)

// Status is a step in the case life cycle. The progression is strict: a case
// cannot reach in_production without an active editor assignment.
type Status string

const (
	StatusCreated           Status = "created"
	StatusWaitingOnFamily   Status = "waiting_on_family"
	StatusIntakeInProgress  Status = "intake_in_progress"
	StatusSubmitted         Status = "submitted"
	StatusInProduction      Status = "in_production"
	StatusAwaitingReview    Status = "awaiting_review"
	StatusRevisionRequested Status = "revision_requested"
	StatusDelivered         Status = "delivered"
	StatusClosed            Status = "closed"
)

// transitions lists every permitted status advance.
var transitions = map[Status][]Status{
	StatusCreated:           {StatusWaitingOnFamily},
	StatusWaitingOnFamily:   {StatusIntakeInProgress, StatusSubmitted},
	StatusIntakeInProgress:  {StatusSubmitted},
	StatusSubmitted:         {StatusInProduction},
	StatusInProduction:      {StatusAwaitingReview},
	StatusAwaitingReview:    {StatusRevisionRequested, StatusDelivered},
	StatusRevisionRequested: {StatusInProduction},
	StatusDelivered:         {StatusClosed},
	StatusClosed:            {},
}

// Valid reports whether the status is part of the life cycle.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a case may advance from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Case is a tribute production case owned by a funeral home organization.
type Case struct {
	ID                   string         `json:"id"`
	OrganizationID       string         `json:"organization_id"`
	DeceasedName         string         `json:"deceased_name"`
	CreatedBy            string         `json:"created_by"`
	AssignedFamilyUserID string         `json:"assigned_family_user_id,omitempty"`
	Status               Status         `json:"status"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

var (
	ErrNotFound          = errors.New("cases: not found")
	ErrInvalidInput      = errors.New("cases: invalid input")
	ErrForbidden         = errors.New("cases: forbidden")
	ErrInvalidTransition = errors.New("cases: invalid status transition")
)
