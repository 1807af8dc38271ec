package service

import (
	"context"
	"sync"
	"time"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/sentinel"
)

// numTxShards spreads item keys over independent locks so unrelated items
// never contend.
const numTxShards = 128

// defaultTxTimeout is the maximum duration for a registry transaction.
const defaultTxTimeout = 5 * time.Second

type lockKey struct{}

var lockKeyCtx = lockKey{}

// WithLockKey records the item key a transaction serialises on.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKeyCtx, key)
}

// LockKey returns the key recorded by WithLockKey, or "".
func LockKey(ctx context.Context) string {
	key, _ := ctx.Value(lockKeyCtx).(string)
	return key
}

// HashLockKey is FNV-1a over key. Database transactions use it for advisory locks.
func HashLockKey(key string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return h
}

// ShardedTx is the in-process StoreTx. Writes are staged and applied only when
// fn returns nil, so a failed operation leaves the ledger untouched.
type ShardedTx struct {
	shards  [numTxShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx wraps store with per-key locking.
func NewShardedTx(store Store) *ShardedTx {
	return &ShardedTx{store: store, timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := HashLockKey(LockKey(ctx)) % numTxShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := &stagedStore{Store: t.store}
	if err := fn(context.WithValue(ctx, stagedKeyCtx, staged), staged); err != nil {
		return err
	}
	if err := staged.commit(ctx); err != nil {
		return err
	}
	for _, hook := range staged.afterCommit {
		hook(ctx)
	}
	return nil
}

type stagedKey struct{}

var stagedKeyCtx = stagedKey{}

// deferUntilCommit queues hook to run after the staged transaction in ctx
// commits. It reports false when ctx carries no staged transaction.
func deferUntilCommit(ctx context.Context, hook func(ctx context.Context)) bool {
	staged, ok := ctx.Value(stagedKeyCtx).(*stagedStore)
	if !ok {
		return false
	}
	staged.afterCommit = append(staged.afterCommit, hook)
	return true
}

type resolution struct {
	disputeID id.DisputeID
	key       id.ItemKey
	ruling    models.Ruling
	at        time.Time
}

// stagedStore buffers writes over a Store and serves its own writes back on read.
type stagedStore struct {
	Store
	items       []*models.Item
	resolved    []resolution
	payouts     []models.Payout
	afterCommit []func(ctx context.Context)
}

func (s *stagedStore) FindByKey(ctx context.Context, key id.ItemKey) (*models.Item, error) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Key == key {
			return s.items[i].Snapshot(), nil
		}
	}
	return s.Store.FindByKey(ctx, key)
}

func (s *stagedStore) FindByDisputeID(ctx context.Context, disputeID id.DisputeID) (*models.Item, error) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Disputed && s.items[i].DisputeID == disputeID {
			return s.items[i].Snapshot(), nil
		}
	}
	return s.Store.FindByDisputeID(ctx, disputeID)
}

func (s *stagedStore) Save(_ context.Context, item *models.Item) error {
	if err := item.CheckInvariants(); err != nil {
		return err
	}
	s.items = append(s.items, item.Snapshot())
	return nil
}

func (s *stagedStore) MarkResolved(ctx context.Context, disputeID id.DisputeID, key id.ItemKey, ruling models.Ruling, at time.Time) error {
	resolved, err := s.IsResolved(ctx, disputeID)
	if err != nil {
		return err
	}
	if resolved {
		return sentinel.ErrAlreadyUsed
	}
	s.resolved = append(s.resolved, resolution{disputeID: disputeID, key: key, ruling: ruling, at: at})
	return nil
}

func (s *stagedStore) IsResolved(ctx context.Context, disputeID id.DisputeID) (bool, error) {
	for _, r := range s.resolved {
		if r.disputeID == disputeID {
			return true, nil
		}
	}
	return s.Store.IsResolved(ctx, disputeID)
}

func (s *stagedStore) RecordPayouts(_ context.Context, payouts []models.Payout) error {
	s.payouts = append(s.payouts, payouts...)
	return nil
}

func (s *stagedStore) commit(ctx context.Context) error {
	for _, r := range s.resolved {
		if err := s.Store.MarkResolved(ctx, r.disputeID, r.key, r.ruling, r.at); err != nil {
			return translateStoreErr(err, "failed to commit resolution")
		}
	}
	for _, item := range s.items {
		if err := s.Store.Save(ctx, item); err != nil {
			return translateStoreErr(err, "failed to commit item")
		}
	}
	if len(s.payouts) > 0 {
		if err := s.Store.RecordPayouts(ctx, s.payouts); err != nil {
			return translateStoreErr(err, "failed to commit payouts")
		}
	}
	return nil
}
