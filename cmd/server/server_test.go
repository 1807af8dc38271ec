package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	jwttoken "tcr/internal/jwt_token"
	"tcr/internal/platform/config"
	"tcr/internal/registry/arbitrator"
	registryhandler "tcr/internal/registry/handler"
	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	registryservice "tcr/internal/registry/service"
	registrystore "tcr/internal/registry/store"
	id "tcr/pkg/domain"
	auditpublisher "tcr/pkg/platform/audit/publisher"
	"tcr/pkg/platform/audit/publishers/compliance"
	auditmemory "tcr/pkg/platform/audit/store/memory"
	arbmw "tcr/pkg/platform/middleware/arbitrator"
	"tcr/pkg/testutil"
)

const (
	alice         = id.Address("0x00000000000000000000000000000000000a11ce")
	bob           = id.Address("0x0000000000000000000000000000000000000b0b")
	arbiterSecret = "arbiter-secret"
	itemPath      = "/items/0xc0ffee"
)

type receipt struct {
	Item      models.Item     `json:"item"`
	Payouts   []models.Payout `json:"payouts"`
	DisputeID id.DisputeID    `json:"dispute_id"`
}

// ServerFlowSuite drives the wired router end to end over in-memory stores
// and the in-process arbitrator.
type ServerFlowSuite struct {
	suite.Suite
	router     http.Handler
	audit      *auditmemory.InMemoryStore
	aliceToken string
	bobToken   string
}

func TestServerFlowSuite(t *testing.T) {
	suite.Run(t, new(ServerFlowSuite))
}

func (s *ServerFlowSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{Auth: config.AuthConfig{JWTSigningKey: "test-key", JWTIssuer: "tcr", JWTAudience: "tcr-api"}}

	params, err := registryParams(config.RegistryConfig{
		Arbitrator:      "0x0000000000000000000000000000000000000a7b",
		Stake:           10,
		ChallengePeriod: time.Hour,
	})
	s.Require().NoError(err)

	s.audit = auditmemory.NewInMemoryStore()
	central := arbitrator.NewCentralized(5)
	svc, err := registryservice.New(params, registrystore.NewInMemory(), central,
		registryservice.WithLogger(log),
		registryservice.WithAuditPublisher(compliance.New(s.audit)),
		registryservice.WithRulingGuard(registrystore.NewInMemoryRulingGuard()),
	)
	s.Require().NoError(err)
	central.SetDelivery(arbitrator.SinkDelivery{Sink: svc})

	hash, err := bcrypt.GenerateFromPassword([]byte(arbiterSecret), bcrypt.MinCost)
	s.Require().NoError(err)
	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	h := registryhandler.New(svc, jwttoken.NewJWTServiceAdapter(jwtService), string(hash), log,
		registryhandler.WithRulingGiver(central),
		registryhandler.WithSecurityPublisher(auditpublisher.NewPublisher(s.audit)),
	)
	s.router = newRouter(cfg, log, h, &infra{})

	s.aliceToken, err = jwtService.GenerateAccessToken(alice, time.Hour)
	s.Require().NoError(err)
	s.bobToken, err = jwtService.GenerateAccessToken(bob, time.Hour)
	s.Require().NoError(err)
}

func (s *ServerFlowSuite) post(path, token string, body any) *receipt {
	req := testutil.WithBearer(testutil.NewJSONRequest(s.T(), http.MethodPost, path, body), token)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[receipt](s.T(), rr)
}

func (s *ServerFlowSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("ok", (*body)["status"])
}

func (s *ServerFlowSuite) TestChallengedRegistrationWonBySubmitter() {
	requested := s.post(itemPath+"/registration", s.aliceToken, map[string]any{"payment": "18", "evidence": "ipfs://listing"})
	s.Equal(models.StatusSubmitted, requested.Item.Status)
	s.Require().Len(requested.Payouts, 1)
	s.Equal(models.Amount(3), requested.Payouts[0].Amount)

	challenged := s.post(itemPath+"/registration/challenge", s.bobToken, map[string]any{"payment": "15"})
	s.True(challenged.Item.Disputed)
	s.Equal(id.DisputeID(1), challenged.DisputeID)

	pending := testutil.DoRequest(s.router, testutil.WithHeader(
		testutil.NewJSONRequest(s.T(), http.MethodGet, "/arbitrator/disputes", nil),
		arbmw.HeaderToken, arbiterSecret))
	testutil.AssertStatus(s.T(), pending, http.StatusOK)

	ruled := testutil.DoRequest(s.router, testutil.WithHeader(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/arbitrator/disputes/1/ruling", map[string]string{"ruling": "register"}),
		arbmw.HeaderToken, arbiterSecret))
	testutil.AssertStatus(s.T(), ruled, http.StatusAccepted)

	got := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, itemPath, nil))
	testutil.AssertStatus(s.T(), got, http.StatusOK)
	item := testutil.UnmarshalResponse[struct {
		Item      models.Item `json:"item"`
		Permitted bool        `json:"permitted"`
	}](s.T(), got)
	s.Equal(models.StatusRegistered, item.Item.Status)
	s.False(item.Item.Disputed)
	s.Equal(models.Amount(0), item.Item.Balance)
	s.True(item.Permitted)

	payouts := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/payouts?address="+alice.String(), nil))
	testutil.AssertStatus(s.T(), payouts, http.StatusOK)
	ledger := testutil.UnmarshalResponse[struct {
		Payouts []models.Payout `json:"payouts"`
	}](s.T(), payouts)
	var won models.Amount
	for _, p := range ledger.Payouts {
		if p.Reason == models.PayoutWinnings {
			won += p.Amount
		}
	}
	s.Equal(models.Amount(25), won)

	replay := testutil.DoRequest(s.router, testutil.WithHeader(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/arbitrator/rulings", map[string]string{"dispute_id": "1", "ruling": "clear"}),
		arbmw.HeaderToken, arbiterSecret))
	testutil.AssertStatusAndError(s.T(), replay, http.StatusConflict, "already_resolved")

	events, err := s.audit.ListBySubject(s.T().Context(), "0xc0ffee")
	s.Require().NoError(err)
	s.NotEmpty(events)
}

func (s *ServerFlowSuite) TestRejectsBadCredentials() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, itemPath+"/registration", map[string]any{"payment": "15"}))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(s.router, testutil.WithHeader(
		testutil.NewJSONRequest(s.T(), http.MethodPost, "/arbitrator/rulings", map[string]string{"dispute_id": "1", "ruling": "clear"}),
		arbmw.HeaderToken, "wrong"))
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *ServerFlowSuite) TestExecuteWaitsForChallengePeriod() {
	s.post(itemPath+"/registration", s.aliceToken, map[string]any{"payment": "15"})

	req := testutil.WithBearer(testutil.NewJSONRequest(s.T(), http.MethodPost, itemPath+"/execute", nil), s.bobToken)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "still_challengeable")
}

func TestNewArbitratorResumesAfterLedgerDisputes(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := registrystore.NewInMemory()
	require.NoError(t, ledger.Save(ctx, &models.Item{Key: "k1", Status: models.StatusRegistered}))
	require.NoError(t, ledger.MarkResolved(ctx, 1, "k1", models.RulingRegister, time.Now()))

	_, central, err := newArbitrator(ctx, config.ArbitratorConfig{Mode: "centralized", Fee: 5}, ledger, log)
	require.NoError(t, err)
	require.NotNil(t, central)

	next, err := central.OpenDispute(ctx, ports.DisputeRequest{Key: "k2", Kind: models.KindRegistration, Fee: 5})
	require.NoError(t, err)
	assert.Equal(t, id.DisputeID(2), next)
}
