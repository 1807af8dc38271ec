package main

import (
	"context"
	"database/sql"
	"time"

	registryservice "tcr/internal/registry/service"
	dErrors "tcr/pkg/domain-errors"
	txcontext "tcr/pkg/platform/tx"
)

const defaultRegistryTxTimeout = 5 * time.Second

// registryPostgresTx runs registry operations in one database transaction,
// serialised per item key by a transaction-scoped advisory lock. The ledger
// store and the audit outbox both pick the transaction up from ctx.
type registryPostgresTx struct {
	db      *sql.DB
	store   registryservice.Store
	timeout time.Duration
}

func newRegistryPostgresTx(db *sql.DB, store registryservice.Store) *registryPostgresTx {
	return &registryPostgresTx{db: db, store: store}
}

func (t *registryPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store registryservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistryTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if key := registryservice.LockKey(ctx); key != "" {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(registryservice.HashLockKey(key))); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to lock item")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to commit transaction")
	}
	return nil
}
