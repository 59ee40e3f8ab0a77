package pg

import (
	"context"

	"memorio.org/internal/login"
)

// attemptHorizon bounds the attempt scan. The rate-limit window is minutes
// wide; anything older than an hour can never count against it.
const attemptHorizon = "1 hour"

func (s *Store) Attempts(ctx context.Context, email string) ([]login.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		select email, coalesce(ip_address,''), coalesce(user_agent,''), occurred_at, success
		from login_attempts
		where email = $1 and occurred_at > now() - interval '`+attemptHorizon+`'
		order by occurred_at asc
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []login.Attempt
	for rows.Next() {
		var a login.Attempt
		if err := rows.Scan(&a.Email, &a.IPAddress, &a.UserAgent, &a.At, &a.Success); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Record(ctx context.Context, a login.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_attempts(email, ip_address, user_agent, occurred_at, success)
		values ($1, nullif($2,''), nullif($3,''), $4, $5)
	`, a.Email, a.IPAddress, a.UserAgent, a.At, a.Success)
	return err
}

// Clear removes the failure history after a successful login so the
// sliding window restarts from zero.
func (s *Store) Clear(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from login_attempts where email = $1 and success = false`, email)
	return err
}
