package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/sentinel"
	"tcr/pkg/requestcontext"
)

// Settlement is the result of applying a ruling.
type Settlement struct {
	Item      *models.Item    `json:"item"`
	DisputeID id.DisputeID    `json:"dispute_id"`
	Ruling    models.Ruling   `json:"ruling"`
	Winner    string          `json:"winner"`
	Payouts   []models.Payout `json:"payouts"`
	Remainder models.Amount   `json:"remainder"`
	// Escrow is the balance settled, of which Deposit was the submitter's
	// arbitration deposit.
	Escrow  models.Amount `json:"escrow"`
	Deposit models.Amount `json:"submitter_deposit"`
}

// OnRuling settles the dispute the arbitrator ruled on. Each dispute settles at
// most once; a replay fails with already_resolved and changes nothing.
func (s *Service) OnRuling(ctx context.Context, disputeID id.DisputeID, ruling models.Ruling) error {
	_, err := s.Rule(ctx, disputeID, ruling)
	return err
}

// Rule is OnRuling returning the applied settlement.
func (s *Service) Rule(ctx context.Context, disputeID id.DisputeID, ruling models.Ruling) (result *Settlement, err error) {
	action := models.ActionRule.String()
	start := time.Now()
	ctx, span := s.startSpan(ctx, "registry.rule",
		attribute.String("dispute_id", disputeID.String()),
		attribute.String("ruling", ruling.String()),
	)
	defer func() { s.finish(span, action, start, err) }()

	if !ruling.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %d", ruling)
	}
	if s.seen(ctx, disputeID) {
		s.logSecurity(ctx, audit.EventRulingReplayed, disputeID.String(), "ruling already applied")
		return nil, dErrors.Newf(dErrors.CodeAlreadyResolved, "dispute %s is already resolved", disputeID)
	}

	found, err := s.store.FindByDisputeID(ctx, disputeID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translateStoreErr(err, "failed to look up dispute")
		}
		return nil, s.unlinkedDispute(ctx, disputeID)
	}
	now := requestcontext.Now(ctx)

	err = s.runInTx(ctx, found.Key, func(ctx context.Context, store Store) error {
		item, err := s.load(ctx, store, found.Key)
		if err != nil {
			return err
		}
		if !item.Disputed || item.DisputeID != disputeID {
			return s.unlinkedDispute(ctx, disputeID)
		}
		if err := store.MarkResolved(ctx, disputeID, item.Key, ruling, now); err != nil {
			return translateStoreErr(err, "failed to mark dispute resolved")
		}

		bothStakes, err := s.params.Stake.Add(s.params.Stake)
		if err != nil {
			return err
		}
		deposit, err := item.Balance.Sub(bothStakes)
		if err != nil {
			return err
		}
		escrow := item.Balance
		settled, err := models.Settle(models.SettlementInput{
			Balance:          escrow,
			Stake:            s.params.Stake,
			SubmitterDeposit: deposit,
			Ruling:           ruling,
			PriorStatus:      item.Status,
			Rules:            s.params.Rules(),
		})
		if err != nil {
			return err
		}

		reason := models.PayoutWinnings
		if settled.Winner == models.SideNone {
			reason = models.PayoutTieSplit
		}
		payouts := appendPayout(nil, item.Key, item.Submitter, settled.ToSubmitter, reason, disputeID, now)
		payouts = appendPayout(payouts, item.Key, item.Challenger, settled.ToChallenger, reason, disputeID, now)

		item.Status = settled.Status
		item.Disputed = false
		item.DisputeID = 0
		item.Challenger = ""
		item.Balance = settled.Retained
		if settled.Reopened {
			item.LastAction = now
		} else {
			item.Submitter = ""
		}
		if err := store.Save(ctx, item); err != nil {
			return translateStoreErr(err, "failed to save item")
		}
		if err := recordPayouts(ctx, store, payouts); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ComplianceEvent{
			Subject:   item.Key.Hex(),
			Action:    string(audit.EventDisputeRuled),
			ActorID:   "arbitrator",
			DisputeID: disputeID.String(),
			Amount:    escrow.String(),
			Decision:  ruling.String(),
		}); err != nil {
			return err
		}
		for _, p := range payouts {
			if err := s.emit(ctx, audit.ComplianceEvent{
				Subject:   item.Key.Hex(),
				Action:    string(audit.EventPayoutRecorded),
				ActorID:   p.To.String(),
				DisputeID: disputeID.String(),
				Amount:    p.Amount.String(),
				Decision:  string(p.Reason),
			}); err != nil {
				return err
			}
		}
		result = &Settlement{
			Item:      item.Snapshot(),
			DisputeID: disputeID,
			Ruling:    ruling,
			Winner:    settled.Winner.String(),
			Payouts:   payouts,
			Remainder: settled.Remainder,
			Escrow:    escrow,
			Deposit:   settled.SubmitterDeposit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.remember(ctx, disputeID)
	s.recordPayoutMetrics(result.Payouts)
	if s.metrics != nil {
		s.metrics.IncRuling(ruling.String())
		if result.Remainder > 0 {
			s.metrics.AddDust(uint64(result.Remainder))
		}
	}
	if result.Remainder > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "tie split left an undistributed remainder",
			"dispute_id", disputeID.String(),
			"remainder", result.Remainder.String(),
		)
	}
	s.logAudit(ctx, string(audit.EventDisputeRuled),
		"item_key", result.Item.Key.Hex(),
		"dispute_id", disputeID.String(),
		"ruling", ruling.String(),
		"winner", result.Winner,
		"status", result.Item.Status.String(),
		"escrow", result.Escrow.String(),
		"submitter_deposit", result.Deposit.String(),
	)
	return result, nil
}

// unlinkedDispute classifies a dispute id that no item currently carries.
func (s *Service) unlinkedDispute(ctx context.Context, disputeID id.DisputeID) error {
	resolved, err := s.store.IsResolved(ctx, disputeID)
	if err != nil {
		return translateStoreErr(err, "failed to check dispute")
	}
	if resolved {
		s.logSecurity(ctx, audit.EventRulingReplayed, disputeID.String(), "ruling already applied")
		return dErrors.Newf(dErrors.CodeAlreadyResolved, "dispute %s is already resolved", disputeID)
	}
	return dErrors.Newf(dErrors.CodeUnknownDispute, "dispute %s is not linked to any item", disputeID)
}

func (s *Service) seen(ctx context.Context, disputeID id.DisputeID) bool {
	if s.guard == nil {
		return false
	}
	seen, err := s.guard.Seen(ctx, disputeID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "ruling guard unavailable", "dispute_id", disputeID.String(), "error", err)
		}
		return false
	}
	return seen
}

func (s *Service) remember(ctx context.Context, disputeID id.DisputeID) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Remember(ctx, disputeID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to remember ruling", "dispute_id", disputeID.String(), "error", err)
	}
}
