// Package assign implements the work assignment balancer: when a family
// submits its intake, the case goes to the eligible editor carrying the
// fewest active cases.
package assign

import (
	"errors"
	"time"
)

// Assignment links an editor to a case. A nil UnassignedAt means the
// assignment is currently active; the store guarantees at most one active
// assignment per case.
type Assignment struct {
	ID           string     `json:"id"`
	CaseID       string     `json:"case_id"`
	EditorUserID string     `json:"editor_user_id"`
	AssignedBy   string     `json:"assigned_by"`
	AssignedAt   time.Time  `json:"assigned_at"`
	UnassignedAt *time.Time `json:"unassigned_at,omitempty"`
}

// Active reports whether the assignment is currently in effect.
func (a *Assignment) Active() bool {
	return a != nil && a.UnassignedAt == nil
}

// Candidate is an eligible editor with their current load.
type Candidate struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ActiveCount int       `json:"active_case_count"`
}

// DisplayName returns the editor's name, falling back to their email.
func (c Candidate) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

var (
	// ErrForbidden means the requesting principal is not the family member
	// bound to the case.
	ErrForbidden = errors.New("assign: case does not belong to requester")
	// ErrConflict is returned by stores when an active assignment already
	// exists for the case.
	ErrConflict = errors.New("assign: active assignment already exists")
)
