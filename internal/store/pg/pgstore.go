// Package pg is the PostgreSQL persistence layer. It speaks database/sql
// over the pgx stdlib driver and maps SQL failure modes onto the domain
// sentinel errors, so callers never see driver types.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"memorio.org/internal/assign"
	"memorio.org/internal/audit"
	"memorio.org/internal/cases"
	"memorio.org/internal/login"
	"memorio.org/internal/notify"
)

type Store struct {
	db *sql.DB
}

var (
	_ login.AttemptStore = (*Store)(nil)
	_ login.UserStore    = (*Store)(nil)
	_ cases.Store        = (*Store)(nil)
	_ assign.Store       = (*Store)(nil)
	_ audit.Sink         = (*Store)(nil)
	_ notify.Sink        = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool; tests pass an sqlmock handle here.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// isUniqueViolation reports whether err is a unique-constraint failure
// (SQLSTATE 23505), which the assignment path maps to ErrConflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
