package assign

import (
	"context"
	"sync"
	"time"

	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
)

// InMemory implements Store over in-process maps, for tests and store-less
// development. It enforces the same at-most-one-active-assignment invariant
// a real store pushes into a partial unique index.
type InMemory struct {
	mu          sync.Mutex
	cases       *cases.InMemory
	users       []*auth.User
	assignments []*Assignment
}

// NewInMemory creates an assignment store sharing the given case store.
func NewInMemory(caseStore *cases.InMemory) *InMemory {
	return &InMemory{cases: caseStore}
}

// AddUser registers an editor or admin for eligibility queries.
func (s *InMemory) AddUser(user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
}

func (s *InMemory) FindCase(ctx context.Context, id string) (*cases.Case, error) {
	return s.cases.Find(ctx, id)
}

func (s *InMemory) ActiveAssignment(ctx context.Context, caseID string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.CaseID == caseID && a.UnassignedAt == nil {
			copied := *a
			return &copied, nil
		}
	}
	return nil, cases.ErrNotFound
}

func (s *InMemory) CreateAssignment(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.CaseID == a.CaseID && existing.UnassignedAt == nil {
			return ErrConflict
		}
	}
	copied := *a
	s.assignments = append(s.assignments, &copied)
	return nil
}

func (s *InMemory) UpdateCaseStatus(ctx context.Context, caseID string, from, to cases.Status, at time.Time) error {
	return s.cases.UpdateStatus(ctx, caseID, from, to, at)
}

func (s *InMemory) ListEditors(ctx context.Context) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Candidate
	for _, u := range s.users {
		if u.Role != auth.RoleEditor {
			continue
		}
		if u.Status != auth.StatusActive && u.Status != auth.StatusInvited {
			continue
		}
		out = append(out, Candidate{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt})
	}
	return out, nil
}

func (s *InMemory) ActiveAssignmentCount(ctx context.Context, editorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	for _, a := range s.assignments {
		if a.EditorUserID == editorID && a.UnassignedAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, u := range s.users {
		if u.Role == auth.RoleAdmin && u.Status == auth.StatusActive {
			out = append(out, u.Email)
		}
	}
	return out, nil
}

// Assignments returns a copy of every assignment for inspection in tests.
func (s *InMemory) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, *a)
	}
	return out
}

// Unassign closes the active assignment for a case, as a reassignment
// action would.
func (s *InMemory) Unassign(caseID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.CaseID == caseID && a.UnassignedAt == nil {
			closed := at
			a.UnassignedAt = &closed
		}
	}
}
