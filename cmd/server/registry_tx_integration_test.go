//go:build integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"tcr/internal/platform/config"
	"tcr/internal/platform/kafka/producer"
	"tcr/internal/platform/postgres"
	"tcr/internal/registry/arbitrator"
	"tcr/internal/registry/models"
	registryservice "tcr/internal/registry/service"
	registrystore "tcr/internal/registry/store"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/audit/publishers/compliance"
	auditpostgres "tcr/pkg/platform/audit/store/postgres"
	"tcr/pkg/platform/audit/worker"
	"tcr/pkg/platform/sentinel"
	"tcr/pkg/requestcontext"
	"tcr/pkg/testutil/containers"
)

// PostgresRegistrySuite runs the service against Postgres through the
// advisory-lock transaction, with the audit outbox in the same transaction.
type PostgresRegistrySuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	ledger  *registrystore.Postgres
	outbox  *auditpostgres.Store
	tx      *registryPostgresTx
	service *registryservice.Service
	log     *slog.Logger
}

func TestPostgresRegistrySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRegistrySuite))
}

func (s *PostgresRegistrySuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(s.pg.DB))
	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PostgresRegistrySuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "payouts", "resolved_disputes", "items", "outbox", "audit_events"))

	s.ledger = registrystore.NewPostgres(s.pg.DB)
	s.outbox = auditpostgres.New(s.pg.DB)
	s.tx = newRegistryPostgresTx(s.pg.DB, s.ledger)

	params, err := registryParams(config.RegistryConfig{
		Arbitrator:      "0x0000000000000000000000000000000000000a7b",
		Stake:           10,
		ChallengePeriod: time.Hour,
	})
	s.Require().NoError(err)
	central := arbitrator.NewCentralized(5)
	s.service, err = registryservice.New(params, s.ledger, central,
		registryservice.WithLogger(s.log),
		registryservice.WithStoreTx(s.tx),
		registryservice.WithAuditPublisher(compliance.New(s.outbox)),
	)
	s.Require().NoError(err)
	central.SetDelivery(arbitrator.SinkDelivery{Sink: s.service})
}

func (s *PostgresRegistrySuite) as(caller id.Address) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *PostgresRegistrySuite) TestDisputeSettlesAndRecordsOutbox() {
	key := id.ItemKey("\xab\xcd")
	_, err := s.service.RequestRegistration(s.as(alice), registryservice.RequestInput{Key: key, Payment: 15})
	s.Require().NoError(err)
	challenged, err := s.service.ChallengeRegistration(s.as(bob), registryservice.ChallengeInput{Key: key, Payment: 15})
	s.Require().NoError(err)

	settlement, err := s.service.Rule(context.Background(), challenged.DisputeID, models.RulingClear)
	s.Require().NoError(err)
	s.Equal(models.StatusCleared, settlement.Item.Status)

	item, err := s.ledger.FindByKey(context.Background(), key)
	s.Require().NoError(err)
	s.False(item.Disputed)
	s.Equal(models.Amount(0), item.Balance)

	payouts, err := s.ledger.ListPayouts(context.Background(), bob)
	s.Require().NoError(err)
	s.Require().Len(payouts, 1)
	s.Equal(models.Amount(25), payouts[0].Amount)

	entries, err := s.outbox.ListUnpublished(context.Background(), 100)
	s.Require().NoError(err)
	s.GreaterOrEqual(len(entries), 3)

	_, err = s.service.Rule(context.Background(), challenged.DisputeID, models.RulingClear)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
}

func (s *PostgresRegistrySuite) TestFailedOperationRollsBackLedgerAndOutbox() {
	ctx := registryservice.WithLockKey(context.Background(), "0x01")
	boom := errors.New("boom")

	err := s.tx.RunInTx(ctx, func(ctx context.Context, store registryservice.Store) error {
		s.Require().NoError(store.Save(ctx, &models.Item{
			Key:        "\x01",
			Status:     models.StatusSubmitted,
			Submitter:  alice,
			Balance:    15,
			LastAction: time.Now(),
		}))
		s.Require().NoError(s.outbox.Append(ctx, audit.Event{Action: string(audit.EventRegistrationRequested), Subject: "0x01"}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.ledger.FindByKey(context.Background(), "\x01")
	s.ErrorIs(err, sentinel.ErrNotFound)
	entries, err := s.outbox.ListUnpublished(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *PostgresRegistrySuite) TestConcurrentRequestsOnOneItem() {
	key := id.ItemKey("\x0f")
	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.RequestRegistration(s.as(alice), registryservice.RequestInput{Key: key, Payment: 15})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case dErrors.HasCode(err, dErrors.CodeInvalidStateTransition):
				rejected++
			}
		}()
	}
	wg.Wait()
	s.Equal(1, accepted)
	s.Equal(callers-1, rejected)
}

func (s *PostgresRegistrySuite) TestOutboxRelaysToKafka() {
	rp := containers.GetManager().GetRedpanda(s.T())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.service.RequestRegistration(s.as(alice), registryservice.RequestInput{Key: "\x42", Payment: 15})
	s.Require().NoError(err)

	prod, err := producer.New(producer.Config{Brokers: rp.Brokers, ClientID: "tcr-test"}, s.log)
	s.Require().NoError(err)
	defer prod.Close()

	relay := worker.NewRelay(s.outbox, prod, worker.CategoryTopics("tcr.test.audit"), s.log)
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	remaining, err := s.outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(remaining)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics("tcr.test.audit."+string(audit.CategoryCompliance)),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	fetches := client.PollRecords(ctx, 1)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	var payload audit.Payload
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal("0x42", payload.Subject)
	s.Equal(string(audit.EventRegistrationRequested), payload.Action)
}
