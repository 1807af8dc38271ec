// Package ratelimit caps how often one party may call the mutating registry
// endpoints.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tcr/pkg/platform/httputil"
	"tcr/pkg/requestcontext"
)

type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

// New limits each caller to limit requests per window. Requests without an
// authenticated caller are keyed by client IP.
func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	return &Middleware{store: store, limit: limit, window: window, logger: logger}
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}

// Handler enforces the limit. A store failure lets the request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ip:" + requestcontext.ClientIP(ctx)
		if caller := requestcontext.Caller(ctx); !caller.IsNil() {
			key = "party:" + caller.String()
		}

		result, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "key", key)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many registry operations, try again later",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
