package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"memorio.org/internal/cases"
)

func (s *Store) Create(ctx context.Context, c *cases.Case) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into cases(id, organization_id, deceased_name, created_by, assigned_family_user_id, status, metadata, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5,''), $6, $7, $8, $9)
	`, c.ID, c.OrganizationID, c.DeceasedName, c.CreatedBy, c.AssignedFamilyUserID, c.Status, meta, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return cases.ErrInvalidInput
	}
	return err
}

func (s *Store) Find(ctx context.Context, id string) (*cases.Case, error) {
	var c cases.Case
	var meta []byte
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, deceased_name, created_by, coalesce(assigned_family_user_id,''), status, metadata, created_at, updated_at
		from cases where id = $1
	`, id).Scan(&c.ID, &c.OrganizationID, &c.DeceasedName, &c.CreatedBy, &c.AssignedFamilyUserID, &c.Status, &meta, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cases.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// UpdateStatus is a compare-and-set on the status column. A zero-row
// update means either the case vanished or another request moved it first.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to cases.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update cases set status = $3, updated_at = $4 where id = $1 and status = $2`,
		id, from, to, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Find(ctx, id); err != nil {
			return err
		}
		return cases.ErrInvalidTransition
	}
	return nil
}

func (s *Store) AssignFamily(ctx context.Context, id, familyUserID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update cases set assigned_family_user_id = $2, updated_at = $3 where id = $1`,
		id, familyUserID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return cases.ErrNotFound
	}
	return nil
}

func (s *Store) FindCase(ctx context.Context, id string) (*cases.Case, error) {
	return s.Find(ctx, id)
}

// UpdateCaseStatus adapts UpdateStatus to the balancer's store contract.
func (s *Store) UpdateCaseStatus(ctx context.Context, caseID string, from, to cases.Status, at time.Time) error {
	return s.UpdateStatus(ctx, caseID, from, to, at)
}
