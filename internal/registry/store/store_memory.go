package store

import (
	"context"
	"sync"
	"time"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	"tcr/pkg/platform/sentinel"
)

type resolvedDispute struct {
	key    id.ItemKey
	ruling models.Ruling
	at     time.Time
}

// InMemory is the arena-backed ledger: items by key, insertion order, a
// dispute index, the resolved-dispute set and the payout log.
type InMemory struct {
	mu       sync.RWMutex
	items    map[id.ItemKey]*models.Item
	order    []id.ItemKey
	disputes map[id.DisputeID]id.ItemKey
	resolved map[id.DisputeID]resolvedDispute
	payouts  []models.Payout
	nextSeq  uint64
}

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		items:    make(map[id.ItemKey]*models.Item),
		disputes: make(map[id.DisputeID]id.ItemKey),
		resolved: make(map[id.DisputeID]resolvedDispute),
	}
}

// FindByKey returns a copy of the item, or sentinel.ErrNotFound for a key never written.
func (s *InMemory) FindByKey(_ context.Context, key id.ItemKey) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return item.Snapshot(), nil
}

// FindByDisputeID returns the item currently carrying the open dispute.
func (s *InMemory) FindByDisputeID(_ context.Context, disputeID id.DisputeID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.disputes[disputeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.items[key].Snapshot(), nil
}

// Save upserts item after checking ledger invariants. A dispute id already
// linked to another item is a conflict.
func (s *InMemory) Save(_ context.Context, item *models.Item) error {
	if err := item.CheckInvariants(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Disputed {
		if owner, ok := s.disputes[item.DisputeID]; ok && owner != item.Key {
			return sentinel.ErrConflict
		}
	}

	stored := item.Snapshot()
	prev, exists := s.items[item.Key]
	if exists {
		stored.Seq = prev.Seq
		if prev.Disputed && (!stored.Disputed || prev.DisputeID != stored.DisputeID) {
			delete(s.disputes, prev.DisputeID)
		}
	} else {
		s.nextSeq++
		stored.Seq = s.nextSeq
		s.order = append(s.order, item.Key)
	}
	if stored.Disputed {
		s.disputes[stored.DisputeID] = stored.Key
	}
	s.items[item.Key] = stored
	item.Seq = stored.Seq
	return nil
}

// Count returns the number of items ever written.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// ListInOrder calls fn with a copy of each item in insertion order. The read
// lock is held for the whole walk, so fn must not call back into the store.
func (s *InMemory) ListInOrder(ctx context.Context, descending bool, fn func(*models.Item) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := i
		if descending {
			idx = n - 1 - i
		}
		if !fn(s.items[s.order[idx]].Snapshot()) {
			return nil
		}
	}
	return nil
}

// MarkResolved adds disputeID to the resolved set; a second call fails with
// sentinel.ErrAlreadyUsed.
func (s *InMemory) MarkResolved(_ context.Context, disputeID id.DisputeID, key id.ItemKey, ruling models.Ruling, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolved[disputeID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.resolved[disputeID] = resolvedDispute{key: key, ruling: ruling, at: at}
	return nil
}

func (s *InMemory) IsResolved(_ context.Context, disputeID id.DisputeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resolved[disputeID]
	return ok, nil
}

// LastDisputeID returns the highest dispute id the ledger has linked,
// resolved or paid against, or 0 when none.
func (s *InMemory) LastDisputeID(_ context.Context) (id.DisputeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last id.DisputeID
	for d := range s.disputes {
		last = max(last, d)
	}
	for d := range s.resolved {
		last = max(last, d)
	}
	for _, p := range s.payouts {
		last = max(last, p.DisputeID)
	}
	return last, nil
}

func (s *InMemory) RecordPayouts(_ context.Context, payouts []models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, payouts...)
	return nil
}

// ListPayouts returns payouts to an address, oldest first.
func (s *InMemory) ListPayouts(_ context.Context, to id.Address) ([]models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.To == to {
			out = append(out, p)
		}
	}
	return out, nil
}
