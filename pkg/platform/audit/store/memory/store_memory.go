package memory

import (
	"context"
	"sync"

	audit "tcr/pkg/platform/audit"
)

// InMemoryStore keeps audit events in insertion order, indexed by subject.
type InMemoryStore struct {
	mu        sync.RWMutex
	all       []audit.Event
	bySubject map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySubject: make(map[string][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = nil
	s.bySubject = make(map[string][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[event.Subject] = append(s.bySubject[event.Subject], len(s.all))
	s.all = append(s.all, event)
	return nil
}

// ListBySubject returns every event recorded for one item, oldest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.bySubject[subject]
	out := make([]audit.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.all[i])
	}
	return out, nil
}

// ListRecent returns the most recent N events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.all) {
		limit = len(s.all)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(s.all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.all[i])
	}
	return out, nil
}
