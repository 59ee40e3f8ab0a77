package login

import (
	"context"
	"sync"
	"time"

	"memorio.org/internal/auth"
)

// InMemoryAttempts implements AttemptStore with a map, for tests and
// store-less development.
type InMemoryAttempts struct {
	mu       sync.Mutex
	attempts map[string][]Attempt

	// FailReads/FailWrites force errors to exercise the gate's failure
	// semantics in tests.
	FailReads  error
	FailWrites error
}

// NewInMemoryAttempts creates an empty attempt store.
func NewInMemoryAttempts() *InMemoryAttempts {
	return &InMemoryAttempts{attempts: make(map[string][]Attempt)}
}

func (s *InMemoryAttempts) Attempts(ctx context.Context, email string) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	out := make([]Attempt, len(s.attempts[email]))
	copy(out, s.attempts[email])
	return out, nil
}

func (s *InMemoryAttempts) Record(ctx context.Context, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.attempts[attempt.Email] = append(s.attempts[attempt.Email], attempt)
	return nil
}

func (s *InMemoryAttempts) Clear(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	delete(s.attempts, email)
	return nil
}

// InMemoryUsers implements UserStore with a map keyed by normalized email.
type InMemoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]*auth.User
}

// NewInMemoryUsers creates an empty user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{byEmail: make(map[string]*auth.User)}
}

// Add registers a user, keyed by normalized email.
func (s *InMemoryUsers) Add(user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[NormalizeEmail(user.Email)] = user
}

func (s *InMemoryUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *InMemoryUsers) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byEmail {
		if user.ID == userID {
			last := at
			user.LastLoginAt = &last
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *InMemoryUsers) Activate(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byEmail {
		if user.ID == userID {
			if user.Status == auth.StatusInvited {
				user.Status = auth.StatusActive
			}
			return nil
		}
	}
	return auth.ErrNotFound
}

// CreateUser registers a new account, rejecting duplicate emails.
func (s *InMemoryUsers) CreateUser(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := NormalizeEmail(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return auth.ErrAlreadyExists
	}
	copied := *user
	s.byEmail[key] = &copied
	return nil
}

// Get returns the stored user for inspection in tests.
func (s *InMemoryUsers) Get(email string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail[NormalizeEmail(email)]
}
