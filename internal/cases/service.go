package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/ids"
)

// Store persists cases.
type Store interface {
	Create(ctx context.Context, c *Case) error
	Find(ctx context.Context, id string) (*Case, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	AssignFamily(ctx context.Context, id, familyUserID string, at time.Time) error
}

// NewCase carries the director-provided decedent details.
type NewCase struct {
	DeceasedName    string         `json:"deceased_name"`
	ServiceDate     string         `json:"service_date,omitempty"`
	ServiceLocation string         `json:"service_location,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Service implements the case operations exposed over HTTP.
type Service struct {
	store Store
	audit *audit.Log
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the case service.
func NewService(store Store, auditLog *audit.Log, opts ...ServiceOption) *Service {
	s := &Service{store: store, audit: auditLog, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new case. Only directors create cases, and the case joins
// the director's organization.
func (s *Service) Create(ctx context.Context, principal auth.Principal, req NewCase) (*Case, error) {
	if principal.Role != auth.RoleDirector {
		return nil, fmt.Errorf("%w: only directors can create cases", ErrForbidden)
	}
	req.DeceasedName = strings.TrimSpace(req.DeceasedName)
	if req.DeceasedName == "" {
		return nil, fmt.Errorf("%w: deceased_name is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.ServiceDate != "" {
		metadata["service_date"] = req.ServiceDate
	}
	if req.ServiceLocation != "" {
		metadata["service_location"] = req.ServiceLocation
	}

	c := &Case{
		ID:             ids.New(),
		OrganizationID: principal.OrganizationID,
		DeceasedName:   req.DeceasedName,
		CreatedBy:      principal.UserID,
		Status:         StatusCreated,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event{
			Action:     "CREATE_CASE",
			TargetType: "case",
			TargetID:   c.ID,
			Payload: map[string]any{
				"deceased_name":   c.DeceasedName,
				"organization_id": c.OrganizationID,
			},
		})
	}
	return c, nil
}

// Get loads a case, enforcing visibility: family members see only their own
// case, directors only cases of their organization.
func (s *Service) Get(ctx context.Context, principal auth.Principal, id string) (*Case, error) {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	switch principal.Role {
	case auth.RoleAdmin, auth.RoleEditor, auth.RoleQC, auth.RoleSupport:
		return c, nil
	case auth.RoleDirector:
		if c.OrganizationID != principal.OrganizationID {
			return nil, ErrForbidden
		}
		return c, nil
	case auth.RoleFamily:
		if c.AssignedFamilyUserID != principal.UserID {
			return nil, ErrForbidden
		}
		return c, nil
	default:
		return nil, ErrForbidden
	}
}

// BindFamily attaches an invited family member to the case and moves it to
// waiting_on_family.
func (s *Service) BindFamily(ctx context.Context, caseID, familyUserID string) error {
	c, err := s.store.Find(ctx, caseID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.store.AssignFamily(ctx, caseID, familyUserID, now); err != nil {
		return err
	}
	if c.Status == StatusCreated {
		if err := s.store.UpdateStatus(ctx, caseID, StatusCreated, StatusWaitingOnFamily, now); err != nil {
			return err
		}
	}
	return nil
}

// Submit records the family's intake submission. The caller must be the
// family principal bound to the case; the balancer picks the submission up
// afterwards.
func (s *Service) Submit(ctx context.Context, principal auth.Principal, caseID string) (*Case, error) {
	c, err := s.store.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.AssignedFamilyUserID == "" || c.AssignedFamilyUserID != principal.UserID {
		return nil, fmt.Errorf("%w: case does not belong to you", ErrForbidden)
	}
	if c.Status == StatusSubmitted {
		return c, nil
	}
	if !CanTransition(c.Status, StatusSubmitted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusSubmitted)
	}

	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, caseID, c.Status, StatusSubmitted, now); err != nil {
		return nil, err
	}
	c.Status = StatusSubmitted
	c.UpdatedAt = now

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event{
			Action:     "SUBMIT_INTAKE",
			TargetType: "case",
			TargetID:   c.ID,
			Payload:    map[string]any{"deceased_name": c.DeceasedName},
		})
	}
	return c, nil
}
