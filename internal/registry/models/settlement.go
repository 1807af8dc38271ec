package models

import (
	dErrors "tcr/pkg/domain-errors"
)

// SettlementInput is everything the settlement engine needs to close a dispute.
type SettlementInput struct {
	// Balance is the escrow at ruling time: both stakes plus the submitter's
	// arbitration deposit. The challenger's fee went to the arbitrator when the
	// dispute opened and is not part of it.
	Balance Amount
	Stake   Amount
	// SubmitterDeposit is the submitter's arbitration deposit held in Balance.
	// It is redistributed with the stakes.
	SubmitterDeposit Amount
	Ruling           Ruling
	PriorStatus      Status
	Rules            Rules
}

// Settlement is the fund distribution for one resolved dispute.
//
// ToSubmitter + ToChallenger + Retained + Remainder always equals the input
// balance, so nothing leaks and nothing is minted.
type Settlement struct {
	Status   Status
	Reopened bool
	Winner   Side
	Kind     RequestKind

	ToSubmitter  Amount
	ToChallenger Amount
	// Retained stays in escrow as the stake of a re-opened request.
	Retained Amount
	// Remainder is the unit lost to floor division on a tie. It goes to neither side.
	Remainder Amount
	// SubmitterDeposit echoes the input. It is part of what the winner receives.
	SubmitterDeposit Amount
}

// Settle computes payouts and the resulting status for a ruling. It is pure:
// the caller applies the result to the ledger and records the transfers.
//
// The winner takes the redistributable balance, which forfeits the loser's
// stake to them. A tie splits it evenly with floor division. When the winning
// request is re-opened for another challenge round, one stake stays in escrow
// for it.
func Settle(in SettlementInput) (Settlement, error) {
	kind, ok := in.PriorStatus.Kind()
	if !ok {
		return Settlement{}, dErrors.Newf(dErrors.CodeInvalidStateTransition, "no dispute can be settled while %s", in.PriorStatus)
	}
	outcome, err := Transition(in.PriorStatus, Event{Action: ActionRule, Ruling: in.Ruling}, in.Rules)
	if err != nil {
		return Settlement{}, err
	}

	bothStakes, err := in.Stake.Add(in.Stake)
	if err != nil {
		return Settlement{}, err
	}
	if in.Balance < bothStakes {
		return Settlement{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"disputed balance %s does not cover both stakes of %s", in.Balance, in.Stake)
	}

	s := Settlement{
		Status:           outcome.Status,
		Reopened:         outcome.Reopened,
		Winner:           Winner(kind, in.Ruling),
		Kind:             kind,
		SubmitterDeposit: in.SubmitterDeposit,
	}

	pot := in.Balance
	if outcome.Reopened {
		s.Retained = in.Stake
		pot -= in.Stake
	}

	switch s.Winner {
	case SideSubmitter:
		s.ToSubmitter = pot
	case SideChallenger:
		s.ToChallenger = pot
	default:
		half := pot / 2
		s.ToSubmitter = half
		s.ToChallenger = half
		s.Remainder = pot % 2
	}

	if err := s.verify(in.Balance); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

func (s Settlement) verify(balance Amount) error {
	paid, err := s.ToSubmitter.Add(s.ToChallenger)
	if err != nil {
		return err
	}
	if paid > balance {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "settlement pays %s out of a balance of %s", paid, balance)
	}
	total, err := paid.Add(s.Retained)
	if err != nil {
		return err
	}
	total, err = total.Add(s.Remainder)
	if err != nil {
		return err
	}
	if total != balance {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "settlement accounts for %s of a balance of %s", total, balance)
	}
	return nil
}

// Release is the escrow outcome of executing an undisputed request.
type Release struct {
	Status   Status
	Reopened bool
	Refund   Amount
	Retained Amount
}

// ReleaseEscrow computes the no-dispute outcome for a pending request whose
// challenge period has elapsed. The submitter gets its deposit back in full,
// except for one stake kept in escrow when the request is re-opened.
func ReleaseEscrow(prior Status, balance, stake Amount, rules Rules) (Release, error) {
	outcome, err := Transition(prior, Event{Action: ActionExecute}, rules)
	if err != nil {
		return Release{}, err
	}
	r := Release{Status: outcome.Status, Reopened: outcome.Reopened, Refund: balance}
	if outcome.Reopened {
		if balance < stake {
			return Release{}, dErrors.Newf(dErrors.CodeInvariantViolation,
				"balance %s does not cover the stake of %s", balance, stake)
		}
		r.Retained = stake
		r.Refund = balance - stake
	}
	return r, nil
}
