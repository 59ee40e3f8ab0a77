package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"memorio.org/internal/auth"
)

const userColumns = `id, coalesce(organization_id,''), email, password_hash, role, status,
	coalesce(name,''), coalesce(phone,''), last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.Name, &u.Phone, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, organization_id, email, password_hash, role, status, name, phone, created_at, updated_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, nullif($7,''), nullif($8,''), $9, $9)
	`, u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Role, u.Status, u.Name, u.Phone, u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login_at = $2, updated_at = $2 where id = $1`, userID, at)
	return err
}

// Activate flips an invited user to active on first successful login.
func (s *Store) Activate(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set status = $2, updated_at = now() where id = $1 and status = $3`,
		userID, auth.StatusActive, auth.StatusInvited)
	return err
}
