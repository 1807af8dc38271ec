package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"tcr/internal/registry/arbitrator"
	"tcr/internal/registry/handler/mocks"
	"tcr/internal/registry/models"
	"tcr/internal/registry/service"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	arbmw "tcr/pkg/platform/middleware/arbitrator"
	authmw "tcr/pkg/platform/middleware/auth"
	"tcr/pkg/requestcontext"
	"tcr/pkg/testutil"
)

const (
	aliceToken    = "alice-token"
	aliceAddress  = id.Address("0x00000000000000000000000000000000000a11ce")
	arbiterSecret = "arbiter-secret"
	itemHex       = "0xdeadbeef"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if token != aliceToken {
		return nil, errors.New("invalid token")
	}
	return &authmw.JWTClaims{Address: aliceAddress.String(), JTI: "jti-1"}, nil
}

type RegistryHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	giver    *mocks.MockRulingGiver
	security *mocks.MockSecurityPublisher
	router   chi.Router
	key      id.ItemKey
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.giver = mocks.NewMockRulingGiver(ctrl)
	s.security = mocks.NewMockSecurityPublisher(ctrl)

	hash, err := bcrypt.GenerateFromPassword([]byte(arbiterSecret), bcrypt.MinCost)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, stubValidator{}, string(hash), logger,
		WithRulingGiver(s.giver),
		WithSecurityPublisher(s.security),
	)
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.key, err = id.ParseItemKey(itemHex)
	s.Require().NoError(err)
}

func (s *RegistryHandlerSuite) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *RegistryHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *RegistryHandlerSuite) TestRequestRegistration() {
	s.Run("forwards payment and evidence for the authenticated caller", func() {
		s.service.EXPECT().RequestRegistration(gomock.Any(), service.RequestInput{
			Key:      s.key,
			Evidence: "ipfs://proof",
			Payment:  14,
		}).DoAndReturn(func(ctx context.Context, in service.RequestInput) (*service.Receipt, error) {
			s.Equal(aliceAddress, requestcontext.Caller(ctx))
			return &service.Receipt{Item: &models.Item{Key: in.Key, Status: models.StatusSubmitted, Balance: 10}}, nil
		})

		w := s.do(http.MethodPost, "/items/"+itemHex+"/registration", `{"payment":"14","evidence":"ipfs://proof"}`, bearer(aliceToken))

		s.Equal(http.StatusCreated, w.Code)
		item := s.decode(w)["item"].(map[string]any)
		s.Equal(itemHex, item["key"])
		s.Equal("10", item["balance"])
	})

	s.Run("rejects anonymous callers", func() {
		w := s.do(http.MethodPost, "/items/"+itemHex+"/registration", `{"payment":"14"}`, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("rejects a malformed key", func() {
		w := s.do(http.MethodPost, "/items/zz/registration", `{"payment":"14"}`, bearer(aliceToken))
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(string(dErrors.CodeInvalidInput), s.decode(w)["error"])
	})

	s.Run("rejects unknown body fields", func() {
		w := s.do(http.MethodPost, "/items/"+itemHex+"/registration", `{"payment":"14","tip":"1"}`, bearer(aliceToken))
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("maps insufficient payment to 402", func() {
		s.service.EXPECT().RequestRegistration(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInsufficientPayment, "payment 3 is below required 14"))

		w := s.do(http.MethodPost, "/items/"+itemHex+"/registration", `{"payment":"3"}`, bearer(aliceToken))

		s.Equal(http.StatusPaymentRequired, w.Code)
		s.Equal(string(dErrors.CodeInsufficientPayment), s.decode(w)["error"])
	})
}

func (s *RegistryHandlerSuite) TestChallengeClearing() {
	s.service.EXPECT().ChallengeClearing(gomock.Any(), service.ChallengeInput{Key: s.key, Payment: 14}).
		Return(&service.Receipt{Item: &models.Item{Key: s.key, Status: models.StatusClearingRequested, Disputed: true, DisputeID: 3}, DisputeID: 3}, nil)

	w := s.do(http.MethodPost, "/items/"+itemHex+"/clearing/challenge", `{"payment":14}`, bearer(aliceToken))

	s.Equal(http.StatusCreated, w.Code)
}

func (s *RegistryHandlerSuite) TestExecuteRequest() {
	s.Run("reports an open challenge window as a conflict", func() {
		s.service.EXPECT().ExecuteRequest(gomock.Any(), s.key).
			Return(nil, dErrors.New(dErrors.CodeStillChallengeable, "challenge period has not elapsed"))

		w := s.do(http.MethodPost, "/items/"+itemHex+"/execute", "", bearer(aliceToken))

		s.Equal(http.StatusConflict, w.Code)
		s.Equal(string(dErrors.CodeStillChallengeable), s.decode(w)["error"])
	})

	s.Run("hides internal error details", func() {
		s.service.EXPECT().ExecuteRequest(gomock.Any(), s.key).
			Return(nil, dErrors.New(dErrors.CodeInternal, "db password leaked"))

		w := s.do(http.MethodPost, "/items/"+itemHex+"/execute", "", bearer(aliceToken))

		s.Equal(http.StatusInternalServerError, w.Code)
		s.NotContains(w.Body.String(), "leaked")
	})
}

func (s *RegistryHandlerSuite) TestQueryItems() {
	s.Run("defaults to every item and the default page size", func() {
		s.service.EXPECT().QueryItems(gomock.Any(), service.QueryInput{
			Count:  DefaultQueryCount,
			Filter: models.QueryFilter{Accepted: true, Rejected: true},
		}).Return(&service.QueryResult{Items: []*models.Item{}, Total: 0}, nil)

		w := s.do(http.MethodGet, "/items", "", nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("parses cursor, count, filter and sort", func() {
		s.service.EXPECT().QueryItems(gomock.Any(), service.QueryInput{
			Cursor:     2,
			Count:      5,
			Filter:     models.QueryFilter{Pending: true, MySubmissions: true},
			Descending: true,
		}).DoAndReturn(func(ctx context.Context, _ service.QueryInput) (*service.QueryResult, error) {
			s.Equal(aliceAddress, requestcontext.Caller(ctx))
			return &service.QueryResult{Items: []*models.Item{{Key: s.key}}, HasMore: true, Total: 9}, nil
		})

		w := s.do(http.MethodGet, "/items?cursor=2&count=5&filter=pending,my_submissions&sort=desc", "", bearer(aliceToken))

		s.Equal(http.StatusOK, w.Code)
		resp := s.decode(w)
		s.Equal(true, resp["has_more"])
		s.Len(resp["items"], 1)
	})

	s.Run("rejects an unknown filter", func() {
		w := s.do(http.MethodGet, "/items?filter=sideways", "", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects a non-numeric cursor", func() {
		w := s.do(http.MethodGet, "/items?cursor=abc", "", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("maps cursor out of range", func() {
		s.service.EXPECT().QueryItems(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeCursorOutOfRange, "cursor 4 is out of range for 3 items"))

		w := s.do(http.MethodGet, "/items?cursor=4", "", nil)
		s.Equal(http.StatusRequestedRangeNotSatisfiable, w.Code)
	})

	s.Run("anonymous reads keep the context they arrive with", func() {
		pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().QueryItems(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ service.QueryInput) (*service.QueryResult, error) {
				s.Equal(aliceAddress, requestcontext.Caller(ctx))
				s.Equal(pinned, requestcontext.Now(ctx))
				return &service.QueryResult{Items: []*models.Item{}}, nil
			})

		req := httptest.NewRequest(http.MethodGet, "/items?filter=my_submissions", nil)
		req = testutil.AtTime(testutil.AsParty(req, aliceAddress.String()), pinned)
		w := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), w, http.StatusOK)
	})
}

func (s *RegistryHandlerSuite) TestGetItem() {
	s.service.EXPECT().GetItem(gomock.Any(), s.key).
		Return(&models.Item{Key: s.key, Status: models.StatusRegistered}, nil)
	s.service.EXPECT().Params().Return(models.RegistryParams{Blacklist: false, Stake: 10})

	w := s.do(http.MethodGet, "/items/"+itemHex, "", nil)

	s.Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.Equal(true, resp["permitted"])
}

func (s *RegistryHandlerSuite) TestIsPermitted() {
	s.service.EXPECT().IsPermitted(gomock.Any(), s.key).Return(false, nil)

	w := s.do(http.MethodGet, "/items/"+itemHex+"/permitted", "", nil)

	s.Equal(http.StatusOK, w.Code)
	s.Equal(false, s.decode(w)["permitted"])
}

func (s *RegistryHandlerSuite) TestGetDispute() {
	s.Run("unknown dispute is 404", func() {
		s.service.EXPECT().ItemByDispute(gomock.Any(), id.DisputeID(77)).
			Return(nil, dErrors.New(dErrors.CodeUnknownDispute, "dispute 77 is not linked to any item"))

		w := s.do(http.MethodGet, "/disputes/77", "", nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("non-numeric id is 400", func() {
		w := s.do(http.MethodGet, "/disputes/seven", "", nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestListPayouts() {
	s.service.EXPECT().ListPayouts(gomock.Any(), aliceAddress).Return(nil, nil)

	w := s.do(http.MethodGet, "/payouts?address="+aliceAddress.String(), "", nil)

	s.Equal(http.StatusOK, w.Code)
	s.Equal([]any{}, s.decode(w)["payouts"])
}

func (s *RegistryHandlerSuite) TestRulingCallback() {
	s.Run("applies a ruling with a valid token", func() {
		s.service.EXPECT().Rule(gomock.Any(), id.DisputeID(3), models.RulingClear).
			Return(&service.Settlement{DisputeID: 3, Ruling: models.RulingClear, Winner: "challenger"}, nil)

		w := s.do(http.MethodPost, "/arbitrator/rulings", `{"dispute_id":"3","ruling":2}`,
			map[string]string{arbmw.HeaderToken: arbiterSecret})

		s.Equal(http.StatusOK, w.Code)
		s.Equal("challenger", s.decode(w)["winner"])
	})

	s.Run("replayed ruling is a conflict", func() {
		s.service.EXPECT().Rule(gomock.Any(), id.DisputeID(3), models.RulingClear).
			Return(nil, dErrors.New(dErrors.CodeAlreadyResolved, "dispute 3 is already resolved"))

		w := s.do(http.MethodPost, "/arbitrator/rulings", `{"dispute_id":"3","ruling":"clear"}`,
			map[string]string{arbmw.HeaderToken: arbiterSecret})

		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("bad token is rejected and recorded", func() {
		s.security.EXPECT().EmitSecurity(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, ev audit.SecurityEvent) error {
				s.Equal(string(audit.EventArbitratorRejected), ev.Action)
				s.Equal(audit.SeverityCritical, ev.Severity)
				return nil
			})

		w := s.do(http.MethodPost, "/arbitrator/rulings", `{"dispute_id":"3","ruling":2}`,
			map[string]string{arbmw.HeaderToken: "guess"})

		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestCentralizedArbitrator() {
	headers := map[string]string{arbmw.HeaderToken: arbiterSecret}

	s.Run("lists pending disputes", func() {
		s.giver.EXPECT().Pending().Return([]arbitrator.Dispute{{ID: 1}})

		w := s.do(http.MethodGet, "/arbitrator/disputes", "", headers)

		s.Equal(http.StatusOK, w.Code)
		s.Len(s.decode(w)["disputes"], 1)
	})

	s.Run("gives a ruling", func() {
		s.giver.EXPECT().GiveRuling(gomock.Any(), id.DisputeID(1), models.RulingRegister).Return(nil)

		w := s.do(http.MethodPost, "/arbitrator/disputes/1/ruling", `{"ruling":"register"}`, headers)

		s.Equal(http.StatusAccepted, w.Code)
	})
}
