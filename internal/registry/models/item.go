package models

import (
	"time"

	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"

	"github.com/google/uuid"
)

// Item is the ledger record for one registry entry.
//
// Invariants:
//   - Disputed implies a pending status (Submitted, Resubmitted, ClearingRequested,
//     PreventiveClearingRequested)
//   - Balance is zero whenever the status is Absent, Registered or Cleared and the
//     item is not disputed
//   - Challenger is set exactly while Disputed
//   - Submitter is set whenever a request is pending
//
// Items are never deleted. An unknown key is a logical Absent item with zero
// balance; stores materialise it on first write.
type Item struct {
	Key        id.ItemKey   `json:"key"`
	Status     Status       `json:"status"`
	LastAction time.Time    `json:"last_action"`
	Submitter  id.Address   `json:"submitter,omitempty"`
	Challenger id.Address   `json:"challenger,omitempty"`
	Balance    Amount       `json:"balance"`
	Disputed   bool         `json:"disputed"`
	DisputeID  id.DisputeID `json:"dispute_id"`
	Evidence   string       `json:"evidence,omitempty"`
	// Seq is the insertion order assigned by the store on first write. Query
	// scans walk items in Seq order.
	Seq uint64 `json:"-"`
}

// NewAbsentItem returns the logical record for a key that has never been written.
func NewAbsentItem(key id.ItemKey) *Item {
	return &Item{Key: key, Status: StatusAbsent}
}

// CheckInvariants validates the ledger invariants. Stores call it before every
// write so a bug in the protocol can never persist an inconsistent item.
func (i *Item) CheckInvariants() error {
	if !i.Status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "item %s has unknown status %d", i.Key, i.Status)
	}
	if i.Disputed && !i.Status.IsPending() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "item %s disputed while %s", i.Key, i.Status)
	}
	if !i.Disputed && !i.Status.IsPending() && i.Balance != 0 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "item %s holds %s in escrow while %s", i.Key, i.Balance, i.Status)
	}
	if i.Disputed != !i.Challenger.IsNil() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "item %s challenger does not match dispute flag", i.Key)
	}
	if i.Status.IsPending() && i.Submitter.IsNil() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "item %s pending without submitter", i.Key)
	}
	return nil
}

// ChallengeDeadline is the instant after which an undisputed request may be executed.
func (i *Item) ChallengeDeadline(period time.Duration) time.Time {
	return i.LastAction.Add(period)
}

// Snapshot returns a copy safe to hand out of a store.
func (i *Item) Snapshot() *Item {
	cp := *i
	return &cp
}

// RegistryParams is the registry configuration, immutable after construction.
type RegistryParams struct {
	Arbitrator                 id.Address    `json:"arbitrator"`
	ArbitratorExtraData        string        `json:"arbitrator_extra_data"`
	MetaEvidence               string        `json:"meta_evidence"`
	Blacklist                  bool          `json:"blacklist"`
	AppendOnly                 bool          `json:"append_only"`
	RechallengePossible        bool          `json:"rechallenge_possible"`
	Stake                      Amount        `json:"stake"`
	ChallengePeriod            time.Duration `json:"challenge_period"`
	ArbitrationFeesWaitingTime time.Duration `json:"arbitration_fees_waiting_time"`
	FeeGovernor                id.Address    `json:"fee_governor,omitempty"`
	FeeStake                   Amount        `json:"fee_stake"`
}

// Validate rejects configurations the protocol cannot run with.
func (p RegistryParams) Validate() error {
	if p.Stake == 0 {
		return dErrors.New(dErrors.CodeValidation, "stake must be positive")
	}
	if p.ChallengePeriod < 0 {
		return dErrors.New(dErrors.CodeValidation, "challenge period must not be negative")
	}
	if p.ArbitrationFeesWaitingTime < 0 {
		return dErrors.New(dErrors.CodeValidation, "arbitration fees waiting time must not be negative")
	}
	return nil
}

// Rules extracts the flags the transition function depends on.
func (p RegistryParams) Rules() Rules {
	return Rules{AppendOnly: p.AppendOnly, RechallengePossible: p.RechallengePossible}
}

// PayoutReason explains why funds left escrow.
type PayoutReason string

const (
	PayoutChange      PayoutReason = "change"
	PayoutRefund      PayoutReason = "refund"
	PayoutWinnings    PayoutReason = "winnings"
	PayoutTieSplit    PayoutReason = "tie_split"
	PayoutArbitration PayoutReason = "arbitration_fee"
)

// Payout is one outbound transfer recorded at settlement or refund time.
type Payout struct {
	ID        uuid.UUID    `json:"id"`
	Key       id.ItemKey   `json:"item_key"`
	DisputeID id.DisputeID `json:"dispute_id,omitempty"`
	To        id.Address   `json:"to"`
	Amount    Amount       `json:"amount"`
	Reason    PayoutReason `json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewPayout builds a payout record with a fresh id.
func NewPayout(key id.ItemKey, to id.Address, amount Amount, reason PayoutReason, now time.Time) Payout {
	return Payout{
		ID:        uuid.New(),
		Key:       key,
		To:        to,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}
}
