package store

import (
	"context"
	"sync"

	id "tcr/pkg/domain"
)

// InMemoryRulingGuard is the single-process replay guard.
type InMemoryRulingGuard struct {
	mu   sync.RWMutex
	seen map[id.DisputeID]struct{}
}

func NewInMemoryRulingGuard() *InMemoryRulingGuard {
	return &InMemoryRulingGuard{seen: make(map[id.DisputeID]struct{})}
}

func (g *InMemoryRulingGuard) Seen(_ context.Context, disputeID id.DisputeID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.seen[disputeID]
	return ok, nil
}

func (g *InMemoryRulingGuard) Remember(_ context.Context, disputeID id.DisputeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[disputeID] = struct{}{}
	return nil
}
