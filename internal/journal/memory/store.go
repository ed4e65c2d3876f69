// Package memory is an in-process journal.Store.
package memory

import (
	"context"
	"sync"

	"github.com/minx-network/distribution/internal/journal"
)

// Store keeps events in insertion order.
type Store struct {
	mu     sync.RWMutex
	events []journal.Event
}

func NewStore() *Store {
	return &Store{}
}

// Append stores a copy of every event after validating the whole batch.
func (s *Store) Append(_ context.Context, events []journal.Event) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events = append(s.events, copyEvent(e))
	}
	return nil
}

// List returns matching events, newest first.
func (s *Store) List(_ context.Context, f journal.Filter) ([]journal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]journal.Event, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if !f.Matches(&s.events[i]) {
			continue
		}
		out = append(out, copyEvent(s.events[i]))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Record appends e synchronously, which makes the store usable as a
// journal.Recorder without a Writer in front of it.
func (s *Store) Record(e journal.Event) {
	if err := e.Validate(); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, copyEvent(e))
}

// Events returns every event in insertion order.
func (s *Store) Events() []journal.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]journal.Event, len(s.events))
	for i, e := range s.events {
		out[i] = copyEvent(e)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) Close() error { return nil }

var (
	_ journal.Store    = (*Store)(nil)
	_ journal.Recorder = (*Store)(nil)
)

func copyEvent(e journal.Event) journal.Event {
	e.Amount = e.Amount.Clone()
	return e
}
