package pg

import (
	"context"
	"database/sql"
	"errors"

	"memorio.org/internal/assign"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
)

func (s *Store) ActiveAssignment(ctx context.Context, caseID string) (*assign.Assignment, error) {
	var a assign.Assignment
	err := s.db.QueryRowContext(ctx, `
		select id, case_id, editor_user_id, assigned_by, assigned_at
		from editor_assignments
		where case_id = $1 and unassigned_at is null
	`, caseID).Scan(&a.ID, &a.CaseID, &a.EditorUserID, &a.AssignedBy, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cases.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment relies on the partial unique index over (case_id) where
// unassigned_at is null; a violation means a concurrent request already
// assigned this case.
func (s *Store) CreateAssignment(ctx context.Context, a *assign.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into editor_assignments(id, case_id, editor_user_id, assigned_by, assigned_at)
		values ($1, $2, $3, $4, $5)
	`, a.ID, a.CaseID, a.EditorUserID, a.AssignedBy, a.AssignedAt)
	if isUniqueViolation(err) {
		return assign.ErrConflict
	}
	return err
}

func (s *Store) ListEditors(ctx context.Context) ([]assign.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, coalesce(name,''), created_at
		from users
		where role = $1 and status in ($2, $3)
	`, auth.RoleEditor, auth.StatusActive, auth.StatusInvited)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []assign.Candidate
	for rows.Next() {
		var c assign.Candidate
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ActiveAssignmentCount(ctx context.Context, editorID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from editor_assignments where editor_user_id = $1 and unassigned_at is null`,
		editorID).Scan(&n)
	return n, err
}

// RankedEditors pushes the load ranking into one query instead of a count
// round-trip per editor.
func (s *Store) RankedEditors(ctx context.Context) ([]assign.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.email, coalesce(u.name,''), u.created_at, count(a.id) as active_count
		from users u
		left join editor_assignments a on a.editor_user_id = u.id and a.unassigned_at is null
		where u.role = $1 and u.status in ($2, $3)
		group by u.id, u.email, u.name, u.created_at
		order by active_count asc, u.created_at asc
	`, auth.RoleEditor, auth.StatusActive, auth.StatusInvited)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []assign.Candidate
	for rows.Next() {
		var c assign.Candidate
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt, &c.ActiveCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select email from users where role = $1 and status = $2 order by email`,
		auth.RoleAdmin, auth.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
