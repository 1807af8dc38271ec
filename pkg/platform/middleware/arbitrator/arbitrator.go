// Package arbitrator authenticates arbitrator callbacks.
package arbitrator

import (
	"log/slog"
	"net/http"

	request "tcr/pkg/platform/middleware/request"
	"tcr/pkg/requestcontext"

	"golang.org/x/crypto/bcrypt"
)

// HeaderToken carries the arbitrator's shared secret.
const HeaderToken = "X-Arbitrator-Token"

// SecurityRecorder receives rejected callback attempts.
type SecurityRecorder interface {
	RecordRejectedCallback(r *http.Request, reason string)
}

// RequireArbitratorToken admits requests whose token matches the configured
// bcrypt hash. An empty hash rejects everything.
func RequireArbitratorToken(tokenHash string, recorder SecurityRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	hash := []byte(tokenHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderToken)
			if len(hash) == 0 || token == "" || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "arbitrator token mismatch",
					"request_id", request.GetRequestID(ctx),
					"ip", requestcontext.ClientIP(ctx),
				)
				if recorder != nil {
					recorder.RecordRejectedCallback(r, "arbitrator token mismatch")
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"arbitrator token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
