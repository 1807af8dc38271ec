package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/requestcontext"
)

// RequestInput opens a registration or clearing request.
type RequestInput struct {
	Key      id.ItemKey
	Evidence string
	Payment  models.Amount
}

// ChallengeInput contests the pending request on an item.
type ChallengeInput struct {
	Key      id.ItemKey
	Evidence string
	Payment  models.Amount
}

// Receipt is the result of a committed mutation.
type Receipt struct {
	Item      *models.Item    `json:"item"`
	Payouts   []models.Payout `json:"payouts"`
	DisputeID id.DisputeID    `json:"dispute_id,omitempty"`
}

// RequestRegistration asks for key to be added. Legal from Absent and, unless
// the registry is append-only, from Cleared.
func (s *Service) RequestRegistration(ctx context.Context, in RequestInput) (*Receipt, error) {
	return s.request(ctx, models.ActionRequestRegistration, audit.EventRegistrationRequested, in)
}

// RequestClearing asks for key to be removed. Legal from Registered and, as a
// preventive clearing, from Absent.
func (s *Service) RequestClearing(ctx context.Context, in RequestInput) (*Receipt, error) {
	return s.request(ctx, models.ActionRequestClearing, audit.EventClearingRequested, in)
}

func (s *Service) request(ctx context.Context, action models.Action, event audit.AuditEvent, in RequestInput) (receipt *Receipt, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "registry."+action.String(), attribute.String("item_key", in.Key.Hex()))
	defer func() { s.finish(span, action.String(), start, err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if in.Key.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "item key is required")
	}
	cost, err := s.quote(ctx)
	if err != nil {
		return nil, err
	}
	deposit, change, err := s.requirePayment(in.Payment, cost)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	err = s.runInTx(ctx, in.Key, func(ctx context.Context, store Store) error {
		item, err := s.load(ctx, store, in.Key)
		if err != nil {
			return err
		}
		out, err := models.Transition(item.Status, models.Event{Action: action}, s.params.Rules())
		if err != nil {
			return err
		}

		item.Status = out.Status
		item.Submitter = caller
		item.Challenger = ""
		item.Disputed = false
		item.DisputeID = 0
		item.Balance = deposit
		item.LastAction = now
		item.Evidence = in.Evidence

		if err := store.Save(ctx, item); err != nil {
			return translateStoreErr(err, "failed to save item")
		}
		payouts := appendPayout(nil, item.Key, caller, change, models.PayoutChange, 0, now)
		if err := recordPayouts(ctx, store, payouts); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ComplianceEvent{
			Subject:  item.Key.Hex(),
			Action:   string(event),
			ActorID:  caller.String(),
			Amount:   deposit.String(),
			Decision: item.Status.String(),
		}); err != nil {
			return err
		}
		receipt = &Receipt{Item: item.Snapshot(), Payouts: payouts}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordPayoutMetrics(receipt.Payouts)
	s.logAudit(ctx, string(event),
		"item_key", in.Key.Hex(),
		"submitter", caller.String(),
		"status", receipt.Item.Status.String(),
		"deposit", deposit.String(),
	)
	return receipt, nil
}

// ChallengeRegistration disputes a pending registration request.
func (s *Service) ChallengeRegistration(ctx context.Context, in ChallengeInput) (*Receipt, error) {
	return s.challenge(ctx, models.ActionChallengeRegistration, in)
}

// ChallengeClearing disputes a pending clearing request.
func (s *Service) ChallengeClearing(ctx context.Context, in ChallengeInput) (*Receipt, error) {
	return s.challenge(ctx, models.ActionChallengeClearing, in)
}

// challenge matches the submitter's deposit, forwards the arbitration fee and
// raises the dispute. Opening the dispute is the last step before the item is
// saved, so every rejection happens before the arbitrator is contacted.
func (s *Service) challenge(ctx context.Context, action models.Action, in ChallengeInput) (receipt *Receipt, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "registry."+action.String(), attribute.String("item_key", in.Key.Hex()))
	defer func() { s.finish(span, action.String(), start, err) }()

	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if in.Key.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "item key is required")
	}
	cost, err := s.quote(ctx)
	if err != nil {
		return nil, err
	}
	_, change, err := s.requirePayment(in.Payment, cost)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	err = s.runInTx(ctx, in.Key, func(ctx context.Context, store Store) error {
		item, err := s.load(ctx, store, in.Key)
		if err != nil {
			return err
		}
		if item.Disputed {
			return dErrors.Newf(dErrors.CodeInvalidChallenge, "item %s is already disputed", item.Key.Hex())
		}
		// No deadline check: a pending request stays challengeable until executed.
		if _, err := models.Transition(item.Status, models.Event{Action: action}, s.params.Rules()); err != nil {
			return err
		}
		kind, _ := item.Status.Kind()
		balance, err := item.Balance.Add(s.params.Stake)
		if err != nil {
			return err
		}

		disputeID, err := s.arbitrator.OpenDispute(ctx, ports.DisputeRequest{
			Key:          item.Key,
			Kind:         kind,
			ExtraData:    s.params.ArbitratorExtraData,
			MetaEvidence: s.params.MetaEvidence,
			Evidence:     in.Evidence,
			Fee:          cost,
		})
		if err != nil {
			return translateArbitratorErr(err, "failed to open dispute")
		}
		resolved, err := store.IsResolved(ctx, disputeID)
		if err != nil {
			return translateStoreErr(err, "failed to check dispute")
		}
		if resolved {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "arbitrator reused a resolved dispute id",
					"dispute_id", disputeID.String(),
					"item_key", item.Key.Hex(),
				)
			}
			return dErrors.Newf(dErrors.CodeConflict, "dispute %s was already resolved", disputeID)
		}

		item.Challenger = caller
		item.Disputed = true
		item.DisputeID = disputeID
		item.Balance = balance
		if err := store.Save(ctx, item); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "dispute opened but not linked",
					"dispute_id", disputeID.String(),
					"item_key", item.Key.Hex(),
					"error", err,
				)
			}
			return translateStoreErr(err, "failed to link dispute")
		}

		payouts := appendPayout(nil, item.Key, s.params.Arbitrator, cost, models.PayoutArbitration, disputeID, now)
		payouts = appendPayout(payouts, item.Key, caller, change, models.PayoutChange, 0, now)
		if err := recordPayouts(ctx, store, payouts); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ComplianceEvent{
			Subject:   item.Key.Hex(),
			Action:    string(audit.EventRequestChallenged),
			ActorID:   caller.String(),
			DisputeID: disputeID.String(),
			Amount:    balance.String(),
			Decision:  kind.String(),
		}); err != nil {
			return err
		}
		receipt = &Receipt{Item: item.Snapshot(), Payouts: payouts, DisputeID: disputeID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementDisputeOpened()
	s.recordPayoutMetrics(receipt.Payouts)
	s.logAudit(ctx, string(audit.EventRequestChallenged),
		"item_key", in.Key.Hex(),
		"challenger", caller.String(),
		"dispute_id", receipt.DisputeID.String(),
		"arbitration_fee", cost.String(),
	)
	return receipt, nil
}

// ExecuteRequest finalises an undisputed request whose challenge period has
// elapsed and refunds the submitter. Anyone may call it.
func (s *Service) ExecuteRequest(ctx context.Context, key id.ItemKey) (receipt *Receipt, err error) {
	action := models.ActionExecute.String()
	start := time.Now()
	ctx, span := s.startSpan(ctx, "registry."+action, attribute.String("item_key", key.Hex()))
	defer func() { s.finish(span, action, start, err) }()

	if key.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "item key is required")
	}
	now := requestcontext.Now(ctx)
	caller := requestcontext.Caller(ctx)

	err = s.runInTx(ctx, key, func(ctx context.Context, store Store) error {
		item, err := s.load(ctx, store, key)
		if err != nil {
			return err
		}
		if item.Disputed {
			return dErrors.Newf(dErrors.CodeAlreadyDisputed, "item %s is awaiting a ruling", key.Hex())
		}
		if !item.Status.IsPending() {
			return dErrors.Newf(dErrors.CodeInvalidStateTransition, "no request to execute while %s", item.Status)
		}
		if deadline := item.ChallengeDeadline(s.params.ChallengePeriod); now.Before(deadline) {
			return dErrors.Newf(dErrors.CodeStillChallengeable, "request can be challenged until %s", deadline.UTC().Format(time.RFC3339))
		}
		release, err := models.ReleaseEscrow(item.Status, item.Balance, s.params.Stake, s.params.Rules())
		if err != nil {
			return err
		}

		payouts := appendPayout(nil, item.Key, item.Submitter, release.Refund, models.PayoutRefund, 0, now)
		item.Status = release.Status
		item.Balance = release.Retained
		if release.Reopened {
			item.LastAction = now
		}
		if err := store.Save(ctx, item); err != nil {
			return translateStoreErr(err, "failed to save item")
		}
		if err := recordPayouts(ctx, store, payouts); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ComplianceEvent{
			Subject:  item.Key.Hex(),
			Action:   string(audit.EventRequestExecuted),
			ActorID:  caller.String(),
			Amount:   release.Refund.String(),
			Decision: item.Status.String(),
		}); err != nil {
			return err
		}
		receipt = &Receipt{Item: item.Snapshot(), Payouts: payouts}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordPayoutMetrics(receipt.Payouts)
	s.logAudit(ctx, string(audit.EventRequestExecuted),
		"item_key", key.Hex(),
		"status", receipt.Item.Status.String(),
	)
	return receipt, nil
}

// appendPayout skips zero transfers.
func appendPayout(payouts []models.Payout, key id.ItemKey, to id.Address, amount models.Amount, reason models.PayoutReason, disputeID id.DisputeID, now time.Time) []models.Payout {
	if amount == 0 || to.IsNil() {
		return payouts
	}
	p := models.NewPayout(key, to, amount, reason, now)
	p.DisputeID = disputeID
	return append(payouts, p)
}

func recordPayouts(ctx context.Context, store Store, payouts []models.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	if err := store.RecordPayouts(ctx, payouts); err != nil {
		return translateStoreErr(err, "failed to record payouts")
	}
	return nil
}
