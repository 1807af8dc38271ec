package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"tcr/pkg/requestcontext"

	"github.com/stretchr/testify/suite"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
	caller string
	next   http.Handler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.caller = ""
	s.next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.caller = requestcontext.Caller(r.Context()).String()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *AuthMiddlewareSuite) serve(mw func(http.Handler) http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw(s.next).ServeHTTP(rec, req)
	return rec
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	valid := stubValidator{claims: &JWTClaims{Address: "0x00000000000000000000000000000000000000A1"}}

	s.Run("valid token sets lowercased caller", func() {
		rec := s.serve(RequireAuth(valid, s.logger), "Bearer good")
		s.Equal(http.StatusNoContent, rec.Code)
		s.Equal("0x00000000000000000000000000000000000000a1", s.caller)
	})

	s.Run("missing header is rejected", func() {
		rec := s.serve(RequireAuth(valid, s.logger), "")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Contains(rec.Body.String(), "unauthorized")
	})

	s.Run("invalid token is rejected", func() {
		rec := s.serve(RequireAuth(stubValidator{err: errors.New("expired")}, s.logger), "Bearer bad")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("non-address subject is rejected", func() {
		rec := s.serve(RequireAuth(stubValidator{claims: &JWTClaims{Address: "alice"}}, s.logger), "Bearer odd")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *AuthMiddlewareSuite) TestOptionalAuth() {
	s.Run("anonymous passes through", func() {
		rec := s.serve(OptionalAuth(stubValidator{err: errors.New("unused")}, s.logger), "")
		s.Equal(http.StatusNoContent, rec.Code)
		s.Equal("", s.caller)
	})

	s.Run("bad token still rejected", func() {
		rec := s.serve(OptionalAuth(stubValidator{err: errors.New("expired")}, s.logger), "Bearer bad")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}
