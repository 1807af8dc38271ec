package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tcr/pkg/domain"
	"tcr/pkg/requestcontext"
)

func TestMemoryStore_SlidingWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.Allow(ctx, "party:a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := s.Allow(ctx, "party:a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt)
	assert.Equal(t, 30, res.RetryAfter)

	other, err := s.Allow(ctx, "party:b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")

	now = start.Add(time.Minute + time.Second)
	res, err = s.Allow(ctx, "party:a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "the oldest request left the window")
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	alice := id.Address("0x00000000000000000000000000000000000a11ce")

	request := func(caller id.Address, ip string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/items/0x01/registration", nil)
		ctx := requestcontext.WithClientMetadata(req.Context(), ip, "")
		if !caller.IsNil() {
			ctx = requestcontext.WithCaller(ctx, caller)
		}
		return req.WithContext(ctx)
	}

	t.Run("limits per caller", func(t *testing.T) {
		h := New(NewMemoryStore(), 1, time.Minute, logger).Handler(ok)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(alice, "10.0.0.1"))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

		w = httptest.NewRecorder()
		h.ServeHTTP(w, request(alice, "10.0.0.2"))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

		w = httptest.NewRecorder()
		h.ServeHTTP(w, request("", "10.0.0.2"))
		assert.Equal(t, http.StatusCreated, w.Code, "anonymous requests are keyed by ip")
	})

	t.Run("fails open when the store errors", func(t *testing.T) {
		h := New(failingStore{}, 1, time.Minute, logger).Handler(ok)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(alice, "10.0.0.1"))
		assert.Equal(t, http.StatusCreated, w.Code)
	})
}
