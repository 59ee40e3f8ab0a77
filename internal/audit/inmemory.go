package audit

import (
	"context"
	"sync"
)

// InMemory is a Sink backed by a slice, for tests and store-less development.
type InMemory struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemory creates an empty in-memory sink.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *InMemory) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
