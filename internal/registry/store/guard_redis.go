package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "tcr/pkg/domain"
)

var rulingGuardDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "tcr_ruling_guard_duration_ms",
	Help:    "Latency of ruling replay checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for resolved dispute markers
	rulingKeyPrefix = "tcr:ruling:"

	defaultRulingTTL = 30 * 24 * time.Hour
)

// RedisRulingGuard marks resolved disputes in Redis so replays are rejected
// before the item lock is taken, across every instance.
type RedisRulingGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisRulingGuardOption configures a RedisRulingGuard.
type RedisRulingGuardOption func(*RedisRulingGuard)

// WithRulingTTL bounds how long markers are kept. The resolved-dispute table
// still rejects replays after a marker expires.
func WithRulingTTL(ttl time.Duration) RedisRulingGuardOption {
	return func(g *RedisRulingGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// NewRedisRulingGuard constructs a Redis-backed replay guard.
func NewRedisRulingGuard(client *redis.Client, opts ...RedisRulingGuardOption) *RedisRulingGuard {
	g := &RedisRulingGuard{client: client, ttl: defaultRulingTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func rulingKey(disputeID id.DisputeID) string {
	return rulingKeyPrefix + disputeID.String()
}

// Seen reports whether a ruling for disputeID was already applied.
func (g *RedisRulingGuard) Seen(ctx context.Context, disputeID id.DisputeID) (bool, error) {
	start := time.Now()
	defer func() {
		rulingGuardDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	_, err := g.client.Get(ctx, rulingKey(disputeID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember sets the marker with SET NX so the first writer wins.
func (g *RedisRulingGuard) Remember(ctx context.Context, disputeID id.DisputeID) error {
	return g.client.SetNX(ctx, rulingKey(disputeID), "1", g.ttl).Err()
}
