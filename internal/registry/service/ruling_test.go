package service_test

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"tcr/internal/registry/models"
	portmocks "tcr/internal/registry/ports/mocks"
	"tcr/internal/registry/service"
	"tcr/internal/registry/service/mocks"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/sentinel"
)

// disputed registers k by alice and has bob challenge it.
func (s *ServiceSuite) disputed(k id.ItemKey) id.DisputeID {
	s.mustRegister(k, alice, t0)
	return s.mustChallengeRegistration(k, bob, t0.Add(time.Minute)).DisputeID
}

func (s *ServiceSuite) TestRuleSubmitterWins() {
	k := key("kept")
	disputeID := s.disputed(k)

	settlement, err := s.service.Rule(as("", t0.Add(time.Hour)), disputeID, models.RulingRegister)
	s.Require().NoError(err)

	s.Equal(models.StatusRegistered, settlement.Item.Status)
	s.Equal("submitter", settlement.Winner)
	s.False(settlement.Item.Disputed)
	s.Equal(models.Amount(0), settlement.Item.Balance)
	s.True(settlement.Item.Submitter.IsNil())
	s.True(settlement.Item.Challenger.IsNil())
	s.Require().Len(settlement.Payouts, 1)
	s.Equal(alice, settlement.Payouts[0].To)
	s.Equal(models.PayoutWinnings, settlement.Payouts[0].Reason)
	s.Equal(deposit+stake, settlement.Payouts[0].Amount)
	s.Equal(disputeID, settlement.Payouts[0].DisputeID)

	s.Equal(deposit+stake, settlement.Escrow)
	s.Equal(cost, settlement.Deposit)

	s.Contains(s.audit.actions(), string(audit.EventDisputeRuled))
	s.Contains(s.audit.actions(), string(audit.EventPayoutRecorded))
	for _, ev := range s.audit.events {
		if ev.Action == string(audit.EventDisputeRuled) {
			s.Equal((deposit + stake).String(), ev.Amount, "ruling reports the escrow it settled")
		}
	}

	_, err = s.service.ItemByDispute(context.Background(), disputeID)
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownDispute))
}

func (s *ServiceSuite) TestRuleChallengerWins() {
	k := key("removed")
	disputeID := s.disputed(k)

	settlement, err := s.service.Rule(context.Background(), disputeID, models.RulingClear)
	s.Require().NoError(err)

	s.Equal(models.StatusCleared, settlement.Item.Status)
	s.Equal("challenger", settlement.Winner)
	s.Require().Len(settlement.Payouts, 1)
	s.Equal(bob, settlement.Payouts[0].To)
	s.Equal(deposit+stake, settlement.Payouts[0].Amount)
}

func (s *ServiceSuite) TestRuleTieSplitsWithRemainder() {
	k := key("tie")
	disputeID := s.disputed(k)

	settlement, err := s.service.Rule(context.Background(), disputeID, models.RulingOther)
	s.Require().NoError(err)

	// 25 in escrow splits 12/12 with one unit left over.
	s.Equal("none", settlement.Winner)
	s.Equal(models.Amount(1), settlement.Remainder)
	s.Require().Len(settlement.Payouts, 2)
	for _, p := range settlement.Payouts {
		s.Equal(models.PayoutTieSplit, p.Reason)
		s.Equal(models.Amount(12), p.Amount)
	}
	s.Equal(models.StatusCleared, settlement.Item.Status)
}

func (s *ServiceSuite) TestRuleReopensWhenRechallengePossible() {
	s.params.RechallengePossible = true
	s.rebuild()
	k := key("reopened")
	disputeID := s.disputed(k)
	ruledAt := t0.Add(2 * time.Hour)

	settlement, err := s.service.Rule(as("", ruledAt), disputeID, models.RulingRegister)
	s.Require().NoError(err)

	s.Equal(models.StatusSubmitted, settlement.Item.Status)
	s.Equal(stake, settlement.Item.Balance)
	s.Equal(alice, settlement.Item.Submitter)
	s.Equal(ruledAt, settlement.Item.LastAction)
	s.Require().Len(settlement.Payouts, 1)
	s.Equal(deposit, settlement.Payouts[0].Amount)

	_, err = s.service.ExecuteRequest(as(bob, ruledAt.Add(30*time.Minute)), k)
	s.True(dErrors.HasCode(err, dErrors.CodeStillChallengeable))
}

func (s *ServiceSuite) TestRuleReplay() {
	k := key("replayed")
	disputeID := s.disputed(k)
	_, err := s.service.Rule(context.Background(), disputeID, models.RulingRegister)
	s.Require().NoError(err)
	before := s.item(k)

	s.Run("guard rejects a replay", func() {
		_, err := s.service.Rule(context.Background(), disputeID, models.RulingClear)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
		s.Equal(before, s.item(k))
	})

	s.Run("resolved set rejects a replay the guard missed", func() {
		svc, err := service.New(s.params, s.store, s.arbitrator)
		s.Require().NoError(err)

		_, err = svc.Rule(context.Background(), disputeID, models.RulingClear)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
		s.Equal(before, s.item(k))
	})
}

func (s *ServiceSuite) TestRuleRejections() {
	s.Run("unknown dispute", func() {
		_, err := s.service.Rule(context.Background(), 404, models.RulingRegister)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownDispute))
	})

	s.Run("invalid ruling", func() {
		_, err := s.service.Rule(context.Background(), 1, models.Ruling(9))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("OnRuling reports the same outcome", func() {
		err := s.service.OnRuling(context.Background(), 404, models.RulingClear)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownDispute))
	})
}

func (s *ServiceSuite) TestRuleStoreFailures() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	guard := mocks.NewMockRulingGuard(ctrl)
	security := mocks.NewMockSecurityPublisher(ctrl)
	svc, err := service.New(s.params, st, portmocks.NewMockArbitrator(ctrl),
		service.WithRulingGuard(guard),
		service.WithSecurityPublisher(security),
	)
	s.Require().NoError(err)
	ctx := context.Background()

	s.Run("lookup failure is internal", func() {
		guard.EXPECT().Seen(gomock.Any(), id.DisputeID(5)).Return(false, nil)
		st.EXPECT().FindByDisputeID(gomock.Any(), id.DisputeID(5)).Return(nil, errors.New("db down"))

		_, err := svc.Rule(ctx, 5, models.RulingClear)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("guard outage falls through to the store", func() {
		guard.EXPECT().Seen(gomock.Any(), id.DisputeID(6)).Return(false, sentinel.ErrUnavailable)
		st.EXPECT().FindByDisputeID(gomock.Any(), id.DisputeID(6)).Return(nil, sentinel.ErrNotFound)
		st.EXPECT().IsResolved(gomock.Any(), id.DisputeID(6)).Return(true, nil)
		security.EXPECT().EmitSecurity(gomock.Any(), gomock.Any()).Return(nil)

		_, err := svc.Rule(ctx, 6, models.RulingClear)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	})

	s.Run("guard hit emits a security event", func() {
		guard.EXPECT().Seen(gomock.Any(), id.DisputeID(7)).Return(true, nil)
		security.EXPECT().EmitSecurity(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev audit.SecurityEvent) error {
				s.Equal(string(audit.EventRulingReplayed), ev.Action)
				s.Equal("7", ev.Subject)
				return nil
			})

		_, err := svc.Rule(ctx, 7, models.RulingClear)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
	})
}
