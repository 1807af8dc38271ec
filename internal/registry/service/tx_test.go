package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcr/internal/registry/models"
	"tcr/internal/registry/store"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/sentinel"
)

func pendingItem(k string) *models.Item {
	return &models.Item{
		Key:       id.ItemKey(k),
		Status:    models.StatusSubmitted,
		Submitter: id.Address("0x00000000000000000000000000000000000a11ce"),
		Balance:   15,
	}
}

func TestShardedTx_CommitsOnSuccess(t *testing.T) {
	st := store.NewInMemory()
	tx := NewShardedTx(st)
	ctx := WithLockKey(context.Background(), "a")

	err := tx.RunInTx(ctx, func(ctx context.Context, s Store) error {
		if err := s.Save(ctx, pendingItem("a")); err != nil {
			return err
		}
		staged, err := s.FindByKey(ctx, id.ItemKey("a"))
		require.NoError(t, err)
		assert.Equal(t, models.StatusSubmitted, staged.Status)

		_, err = st.FindByKey(ctx, id.ItemKey("a"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound, "writes stay staged until commit")
		return s.RecordPayouts(ctx, []models.Payout{models.NewPayout("a", "0x00000000000000000000000000000000000a11ce", 1, models.PayoutChange, time.Now())})
	})
	require.NoError(t, err)

	item, err := st.FindByKey(context.Background(), id.ItemKey("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), item.Seq)
	payouts, err := st.ListPayouts(context.Background(), "0x00000000000000000000000000000000000a11ce")
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func TestShardedTx_DiscardsOnError(t *testing.T) {
	st := store.NewInMemory()
	tx := NewShardedTx(st)
	boom := errors.New("boom")

	err := tx.RunInTx(WithLockKey(context.Background(), "b"), func(ctx context.Context, s Store) error {
		require.NoError(t, s.Save(ctx, pendingItem("b")))
		require.NoError(t, s.MarkResolved(ctx, 9, "b", models.RulingClear, time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	resolved, err := st.IsResolved(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, resolved)
}

func TestShardedTx_StagedMarkResolvedIsOneShot(t *testing.T) {
	tx := NewShardedTx(store.NewInMemory())

	err := tx.RunInTx(context.Background(), func(ctx context.Context, s Store) error {
		require.NoError(t, s.MarkResolved(ctx, 3, "c", models.RulingRegister, time.Now()))
		return s.MarkResolved(ctx, 3, "c", models.RulingRegister, time.Now())
	})
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestShardedTx_RejectsInvariantViolations(t *testing.T) {
	tx := NewShardedTx(store.NewInMemory())
	broken := pendingItem("d")
	broken.Submitter = ""

	err := tx.RunInTx(context.Background(), func(ctx context.Context, s Store) error {
		return s.Save(ctx, broken)
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestShardedTx_CancelledContext(t *testing.T) {
	tx := NewShardedTx(store.NewInMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(context.Context, Store) error {
		called = true
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestShardedTx_SerialisesSameKey(t *testing.T) {
	st := store.NewInMemory()
	tx := NewShardedTx(st)
	ctx := WithLockKey(context.Background(), "counter")
	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, s Store) error {
		return s.Save(ctx, pendingItem("counter"))
	}))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.RunInTx(ctx, func(ctx context.Context, s Store) error {
				item, err := s.FindByKey(ctx, "counter")
				if err != nil {
					return err
				}
				item.Balance++
				return s.Save(ctx, item)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	item, err := st.FindByKey(context.Background(), "counter")
	require.NoError(t, err)
	assert.Equal(t, models.Amount(15+workers), item.Balance)
}

func TestHashLockKey(t *testing.T) {
	assert.Equal(t, HashLockKey("0xabcd"), HashLockKey("0xabcd"))
	assert.NotEqual(t, HashLockKey("0xabcd"), HashLockKey("0xabce"))
	assert.Equal(t, uint32(2166136261), HashLockKey(""))
	assert.Equal(t, "0xabcd", LockKey(WithLockKey(context.Background(), "0xabcd")))
}

type capturedAudit struct {
	events []audit.ComplianceEvent
}

func (c *capturedAudit) Emit(_ context.Context, ev audit.ComplianceEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestShardedTx_AuditEventsWaitForCommit(t *testing.T) {
	bob := id.Address("0x0000000000000000000000000000000000000b0b")
	disputedItem := func(k string) *models.Item {
		item := pendingItem(k)
		item.Disputed, item.DisputeID, item.Challenger, item.Balance = true, 9, bob, 25
		return item
	}

	t.Run("published once the writes land", func(t *testing.T) {
		rec := &capturedAudit{}
		svc := &Service{audit: rec}
		tx := NewShardedTx(store.NewInMemory())

		err := tx.RunInTx(WithLockKey(context.Background(), "a"), func(ctx context.Context, s Store) error {
			require.NoError(t, s.Save(ctx, pendingItem("a")))
			require.NoError(t, svc.emit(ctx, audit.ComplianceEvent{Action: string(audit.EventRegistrationRequested)}))
			assert.Empty(t, rec.events)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, rec.events, 1)
		assert.Equal(t, string(audit.EventRegistrationRequested), rec.events[0].Action)
	})

	t.Run("dropped when the commit fails", func(t *testing.T) {
		st := store.NewInMemory()
		require.NoError(t, st.Save(context.Background(), disputedItem("x")))
		rec := &capturedAudit{}
		svc := &Service{audit: rec}
		tx := NewShardedTx(st)

		err := tx.RunInTx(WithLockKey(context.Background(), "y"), func(ctx context.Context, s Store) error {
			require.NoError(t, s.Save(ctx, disputedItem("y")))
			return svc.emit(ctx, audit.ComplianceEvent{Action: string(audit.EventRequestChallenged)})
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Empty(t, rec.events)

		_, err = st.FindByKey(context.Background(), "y")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("outside a staged transaction the event is immediate", func(t *testing.T) {
		rec := &capturedAudit{}
		svc := &Service{audit: rec}
		require.NoError(t, svc.emit(context.Background(), audit.ComplianceEvent{Action: string(audit.EventRegistrationRequested)}))
		assert.Len(t, rec.events, 1)
	})
}
