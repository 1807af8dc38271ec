package main

import (
	"context"
	"net/http"
	"time"

	"tcr/pkg/platform/httputil"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports liveness plus the reachability of each configured
// backing service. Any failing check turns the response into a 503.
func healthHandler(inf *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		check := func(name string, ping func(context.Context) error) {
			if err := ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				return
			}
			resp.Checks[name] = "ok"
		}
		if inf.db != nil {
			check("postgres", inf.db.PingContext)
		}
		if inf.redis != nil {
			check("redis", inf.redis.Health)
		}
		if inf.producer != nil {
			check("kafka", inf.producer.Ping)
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
