package arbitrator

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type countingRecorder struct{ n int }

func (c *countingRecorder) RecordRejectedCallback(*http.Request, string) { c.n++ }

func TestRequireArbitratorToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &countingRecorder{}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := RequireArbitratorToken(string(hash), rec, logger)(next)

	serve := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/arbitrator/rulings", nil)
		if token != "" {
			req.Header.Set(HeaderToken, token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, serve("s3cret"))
	assert.Equal(t, http.StatusUnauthorized, serve("wrong"))
	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, 2, rec.n)
}

func TestRequireArbitratorToken_EmptyHashRejects(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequireArbitratorToken("", nil, logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderToken, "anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
