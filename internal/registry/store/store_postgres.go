package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	"tcr/pkg/platform/sentinel"
	txcontext "tcr/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index hit.
const uniqueViolation = "23505"

// Postgres persists the ledger in PostgreSQL. Every method binds to the
// transaction carried in ctx when there is one.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

const itemColumns = `key, seq, status, last_action, submitter, challenger, balance, disputed, dispute_id, evidence`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		key        []byte
		seq        int64
		status     int16
		item       models.Item
		submitter  string
		challenger string
		balance    string
		disputeID  sql.NullString
	)
	if err := row.Scan(&key, &seq, &status, &item.LastAction, &submitter, &challenger, &balance, &item.Disputed, &disputeID, &item.Evidence); err != nil {
		return nil, err
	}
	item.Key = id.ItemKey(key)
	item.Seq = uint64(seq)
	item.Status = models.Status(status)
	item.Submitter = id.Address(submitter)
	item.Challenger = id.Address(challenger)
	amount, err := models.ParseAmount(balance)
	if err != nil {
		return nil, fmt.Errorf("decode balance of item %s: %w", item.Key, err)
	}
	item.Balance = amount
	if disputeID.Valid {
		d, err := id.ParseDisputeID(disputeID.String)
		if err != nil {
			return nil, fmt.Errorf("decode dispute id of item %s: %w", item.Key, err)
		}
		item.DisputeID = d
	}
	return &item, nil
}

func (s *Postgres) FindByKey(ctx context.Context, key id.ItemKey) (*models.Item, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE key = $1`, []byte(key))
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	return item, nil
}

func (s *Postgres) FindByDisputeID(ctx context.Context, disputeID id.DisputeID) (*models.Item, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE dispute_id = $1`, disputeID.String())
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find item by dispute: %w", err)
	}
	return item, nil
}

// Save upserts item. Insertion order is assigned on first write and kept.
func (s *Postgres) Save(ctx context.Context, item *models.Item) error {
	if err := item.CheckInvariants(); err != nil {
		return err
	}
	var disputeID any
	if item.Disputed {
		disputeID = item.DisputeID.String()
	}
	query := `
		INSERT INTO items (key, status, last_action, submitter, challenger, balance, disputed, dispute_id, evidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (key) DO UPDATE SET
			status = EXCLUDED.status,
			last_action = EXCLUDED.last_action,
			submitter = EXCLUDED.submitter,
			challenger = EXCLUDED.challenger,
			balance = EXCLUDED.balance,
			disputed = EXCLUDED.disputed,
			dispute_id = EXCLUDED.dispute_id,
			evidence = EXCLUDED.evidence,
			updated_at = now()
		RETURNING seq
	`
	var seq int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		[]byte(item.Key),
		int16(item.Status),
		item.LastAction,
		item.Submitter.String(),
		item.Challenger.String(),
		item.Balance.String(),
		item.Disputed,
		disputeID,
		item.Evidence,
	).Scan(&seq)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save item: %w", err)
	}
	item.Seq = uint64(seq)
	return nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// ListInOrder streams items by seq until fn returns false.
func (s *Postgres) ListInOrder(ctx context.Context, descending bool, fn func(*models.Item) bool) error {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY seq `+order)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		if !fn(item) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	return nil
}

func (s *Postgres) MarkResolved(ctx context.Context, disputeID id.DisputeID, key id.ItemKey, ruling models.Ruling, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO resolved_disputes (dispute_id, item_key, ruling, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dispute_id) DO NOTHING
	`, disputeID.String(), []byte(key), int16(ruling), at)
	if err != nil {
		return fmt.Errorf("mark dispute resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dispute resolved: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) IsResolved(ctx context.Context, disputeID id.DisputeID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM resolved_disputes WHERE dispute_id = $1)`, disputeID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check resolved dispute: %w", err)
	}
	return exists, nil
}

// LastDisputeID returns the highest dispute id found on items, resolved
// disputes or payouts, or 0 when none.
func (s *Postgres) LastDisputeID(ctx context.Context) (id.DisputeID, error) {
	var last string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(dispute_id), 0)::text FROM (
			SELECT dispute_id FROM items WHERE dispute_id IS NOT NULL
			UNION ALL SELECT dispute_id FROM resolved_disputes
			UNION ALL SELECT dispute_id FROM payouts WHERE dispute_id IS NOT NULL
		) seen
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last dispute id: %w", err)
	}
	d, err := id.ParseDisputeID(last)
	if err != nil {
		return 0, fmt.Errorf("last dispute id: %w", err)
	}
	return d, nil
}

func (s *Postgres) RecordPayouts(ctx context.Context, payouts []models.Payout) error {
	for _, p := range payouts {
		var disputeID any
		if p.DisputeID != 0 {
			disputeID = p.DisputeID.String()
		}
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO payouts (id, item_key, dispute_id, recipient, amount, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, []byte(p.Key), disputeID, p.To.String(), p.Amount.String(), string(p.Reason), p.CreatedAt)
		if err != nil {
			return fmt.Errorf("record payout: %w", err)
		}
	}
	return nil
}

func (s *Postgres) ListPayouts(ctx context.Context, to id.Address) ([]models.Payout, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, item_key, dispute_id, recipient, amount, reason, created_at
		FROM payouts
		WHERE recipient = $1
		ORDER BY created_at ASC, id ASC
	`, to.String())
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		var (
			p         models.Payout
			key       []byte
			disputeID sql.NullString
			recipient string
			amount    string
			reason    string
		)
		if err := rows.Scan(&p.ID, &key, &disputeID, &recipient, &amount, &reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Key = id.ItemKey(key)
		p.To = id.Address(recipient)
		p.Reason = models.PayoutReason(reason)
		if p.Amount, err = models.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("decode payout amount: %w", err)
		}
		if disputeID.Valid {
			if p.DisputeID, err = id.ParseDisputeID(disputeID.String); err != nil {
				return nil, fmt.Errorf("decode payout dispute id: %w", err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return out, nil
}
