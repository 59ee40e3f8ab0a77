package notify

import (
	"context"
	"sync"
	"time"

	"memorio.org/internal/ids"
)

// InMemory is a Sink backed by a slice, for tests and store-less development.
type InMemory struct {
	mu    sync.Mutex
	items []Notification
}

// NewInMemory creates an empty in-memory sink.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Enqueue(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = ids.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	s.items = append(s.items, *n)
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (s *InMemory) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}
