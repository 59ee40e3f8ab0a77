package cases

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with a map, for tests and store-less development.
type InMemory struct {
	mu    sync.Mutex
	items map[string]*Case
}

// NewInMemory creates an empty case store.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]*Case)}
}

func (s *InMemory) Create(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.items[c.ID] = &copied
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *InMemory) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != from {
		return ErrInvalidTransition
	}
	c.Status = to
	c.UpdatedAt = at
	return nil
}

func (s *InMemory) AssignFamily(ctx context.Context, id, familyUserID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	c.AssignedFamilyUserID = familyUserID
	c.UpdatedAt = at
	return nil
}
