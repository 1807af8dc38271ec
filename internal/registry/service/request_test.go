package service_test

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"tcr/internal/registry/models"
	"tcr/internal/registry/service"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/sentinel"
)

func (s *ServiceSuite) TestRequestRegistration() {
	k := key("item-1")

	s.Run("escrows stake plus cost and returns change", func() {
		receipt, err := s.service.RequestRegistration(as(alice, t0), service.RequestInput{
			Key:      k,
			Evidence: "ipfs://why",
			Payment:  deposit + 3,
		})
		s.Require().NoError(err)

		s.Equal(models.StatusSubmitted, receipt.Item.Status)
		s.Equal(deposit, receipt.Item.Balance)
		s.Equal(alice, receipt.Item.Submitter)
		s.Equal(t0, receipt.Item.LastAction)
		s.Equal("ipfs://why", receipt.Item.Evidence)
		s.Require().Len(receipt.Payouts, 1)
		s.Equal(models.PayoutChange, receipt.Payouts[0].Reason)
		s.Equal(models.Amount(3), receipt.Payouts[0].Amount)
		s.Equal(alice, receipt.Payouts[0].To)

		stored := s.item(k)
		s.Equal(models.StatusSubmitted, stored.Status)
		s.Equal([]string{string(audit.EventRegistrationRequested)}, s.audit.actions())
	})

	s.Run("exact payment leaves no change payout", func() {
		receipt := s.mustRegister(key("item-exact"), alice, t0)
		s.Empty(receipt.Payouts)
	})

	s.Run("rejects a pending item", func() {
		_, err := s.service.RequestRegistration(as(bob, t0), service.RequestInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func (s *ServiceSuite) TestRequestRejections() {
	k := key("item-2")

	s.Run("insufficient payment changes nothing", func() {
		_, err := s.service.RequestRegistration(as(alice, t0), service.RequestInput{Key: k, Payment: deposit - 1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
		s.Equal(models.StatusAbsent, s.item(k).Status)
	})

	s.Run("anonymous caller is unauthorized", func() {
		_, err := s.service.RequestRegistration(as("", t0), service.RequestInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty key is invalid", func() {
		_, err := s.service.RequestClearing(as(alice, t0), service.RequestInput{Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("audit failure after commit keeps the request", func() {
		s.audit.err = errors.New("outbox unavailable")
		defer func() { s.audit.err = nil }()

		_, err := s.service.RequestRegistration(as(alice, t0), service.RequestInput{Key: k, Payment: deposit})
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, s.item(k).Status)
		s.Empty(s.audit.events)
	})
}

func (s *ServiceSuite) TestRequestClearing() {
	s.Run("preventive clearing from absent", func() {
		receipt, err := s.service.RequestClearing(as(bob, t0), service.RequestInput{Key: key("never-listed"), Payment: deposit})
		s.Require().NoError(err)
		s.Equal(models.StatusPreventiveClearingRequested, receipt.Item.Status)
	})

	s.Run("clearing a registered item", func() {
		k := key("listed")
		s.mustRegister(k, alice, t0)
		_, err := s.service.ExecuteRequest(as(alice, t0.Add(time.Hour)), k)
		s.Require().NoError(err)

		receipt, err := s.service.RequestClearing(as(bob, t0.Add(2*time.Hour)), service.RequestInput{Key: k, Payment: deposit})
		s.Require().NoError(err)
		s.Equal(models.StatusClearingRequested, receipt.Item.Status)
		s.Equal(bob, receipt.Item.Submitter)
	})

	s.Run("cleared items cannot be resubmitted when append-only", func() {
		k := key("gone")
		_, err := s.service.RequestClearing(as(bob, t0), service.RequestInput{Key: k, Payment: deposit})
		s.Require().NoError(err)
		_, err = s.service.ExecuteRequest(as(bob, t0.Add(time.Hour)), k)
		s.Require().NoError(err)

		s.params.AppendOnly = true
		s.rebuild()
		_, err = s.service.RequestRegistration(as(alice, t0.Add(2*time.Hour)), service.RequestInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func (s *ServiceSuite) TestChallenge() {
	k := key("contested")
	s.mustRegister(k, alice, t0)

	s.Run("wrong request family is rejected before the arbitrator is called", func() {
		_, err := s.service.ChallengeClearing(as(bob, t0), service.ChallengeInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidChallenge))
	})

	s.Run("insufficient payment", func() {
		_, err := s.service.ChallengeRegistration(as(bob, t0), service.ChallengeInput{Key: k, Payment: deposit - 1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("arbitrator outage leaves the item undisputed", func() {
		s.arbitrator.EXPECT().OpenDispute(gomock.Any(), gomock.Any()).Return(id.DisputeID(0), sentinel.ErrUnavailable)

		_, err := s.service.ChallengeRegistration(as(bob, t0), service.ChallengeInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.False(s.item(k).Disputed)
	})

	s.Run("opens a dispute and forwards the fee", func() {
		receipt := s.mustChallengeRegistration(k, bob, t0.Add(10*time.Minute))

		s.True(receipt.Item.Disputed)
		s.Equal(bob, receipt.Item.Challenger)
		s.Equal(deposit+stake, receipt.Item.Balance)
		s.Require().Len(receipt.Payouts, 1)
		fee := receipt.Payouts[0]
		s.Equal(models.PayoutArbitration, fee.Reason)
		s.Equal(arbiter, fee.To)
		s.Equal(cost, fee.Amount)
		s.Equal(receipt.DisputeID, fee.DisputeID)

		linked, err := s.service.ItemByDispute(context.Background(), receipt.DisputeID)
		s.Require().NoError(err)
		s.Equal(k, linked.Key)
	})

	s.Run("a disputed item cannot be challenged again", func() {
		_, err := s.service.ChallengeRegistration(as(bob, t0), service.ChallengeInput{Key: k, Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidChallenge))
	})

	s.Run("challenging an absent item is invalid", func() {
		_, err := s.service.ChallengeRegistration(as(bob, t0), service.ChallengeInput{Key: key("nobody"), Payment: deposit})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidChallenge))
	})
}

func (s *ServiceSuite) TestChallengeRejectsResolvedDisputeID() {
	first := key("first")
	disputeID := s.disputed(first)
	_, err := s.service.Rule(context.Background(), disputeID, models.RulingRegister)
	s.Require().NoError(err)

	second := key("second")
	s.mustRegister(second, alice, t0)
	s.audit.events = nil
	s.arbitrator.EXPECT().OpenDispute(gomock.Any(), gomock.Any()).Return(disputeID, nil)

	_, err = s.service.ChallengeRegistration(as(bob, t0.Add(time.Minute)), service.ChallengeInput{Key: second, Payment: deposit})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	item := s.item(second)
	s.Equal(models.StatusSubmitted, item.Status)
	s.False(item.Disputed)
	s.True(item.Challenger.IsNil())
	s.Equal(deposit, item.Balance)
	s.Empty(s.audit.events)

	fees, err := s.service.ListPayouts(context.Background(), arbiter)
	s.Require().NoError(err)
	s.Len(fees, 1)
}

func (s *ServiceSuite) TestChallengeAfterDeadlineBeforeExecution() {
	k := key("late")
	s.mustRegister(k, alice, t0)

	receipt := s.mustChallengeRegistration(k, bob, t0.Add(2*s.params.ChallengePeriod))
	s.True(receipt.Item.Disputed)
	s.Equal(deposit+stake, receipt.Item.Balance)

	_, err := s.service.ExecuteRequest(as(alice, t0.Add(3*s.params.ChallengePeriod)), k)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestExecuteRequest() {
	k := key("executable")
	s.mustRegister(k, alice, t0)

	s.Run("still challengeable inside the period", func() {
		_, err := s.service.ExecuteRequest(as(bob, t0.Add(59*time.Minute)), k)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStillChallengeable))
	})

	s.Run("registers and refunds the submitter after the period", func() {
		receipt, err := s.service.ExecuteRequest(as(bob, t0.Add(time.Hour)), k)
		s.Require().NoError(err)

		s.Equal(models.StatusRegistered, receipt.Item.Status)
		s.Equal(models.Amount(0), receipt.Item.Balance)
		s.Require().Len(receipt.Payouts, 1)
		s.Equal(models.PayoutRefund, receipt.Payouts[0].Reason)
		s.Equal(alice, receipt.Payouts[0].To)
		s.Equal(deposit, receipt.Payouts[0].Amount)

		permitted, err := s.service.IsPermitted(context.Background(), k)
		s.Require().NoError(err)
		s.True(permitted)
	})

	s.Run("nothing to execute on a settled item", func() {
		_, err := s.service.ExecuteRequest(as(bob, t0.Add(2*time.Hour)), k)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	s.Run("disputed items wait for the ruling", func() {
		d := key("disputed")
		s.mustRegister(d, alice, t0)
		s.mustChallengeRegistration(d, bob, t0)

		_, err := s.service.ExecuteRequest(as(bob, t0.Add(2*time.Hour)), d)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDisputed))
	})

	s.Run("resubmission reopens when rechallenge is possible", func() {
		s.params.RechallengePossible = true
		s.rebuild()
		r := key("resubmitted")
		_, err := s.service.RequestClearing(as(bob, t0), service.RequestInput{Key: r, Payment: deposit})
		s.Require().NoError(err)
		_, err = s.service.ExecuteRequest(as(bob, t0.Add(time.Hour)), r)
		s.Require().NoError(err)
		s.mustRegister(r, alice, t0.Add(2*time.Hour))

		later := t0.Add(3 * time.Hour)
		receipt, err := s.service.ExecuteRequest(as(bob, later), r)
		s.Require().NoError(err)

		s.Equal(models.StatusSubmitted, receipt.Item.Status)
		s.Equal(stake, receipt.Item.Balance)
		s.Equal(later, receipt.Item.LastAction)
		s.Require().Len(receipt.Payouts, 1)
		s.Equal(cost, receipt.Payouts[0].Amount)
	})
}

func (s *ServiceSuite) TestPayoutLedger() {
	k := key("ledger")
	_, err := s.service.RequestRegistration(as(alice, t0), service.RequestInput{Key: k, Payment: deposit + 1})
	s.Require().NoError(err)
	_, err = s.service.ExecuteRequest(as(bob, t0.Add(time.Hour)), k)
	s.Require().NoError(err)

	payouts, err := s.service.ListPayouts(context.Background(), alice)
	s.Require().NoError(err)
	s.Require().Len(payouts, 2)
	s.Equal(models.PayoutChange, payouts[0].Reason)
	s.Equal(models.PayoutRefund, payouts[1].Reason)

	_, err = s.service.ListPayouts(context.Background(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
