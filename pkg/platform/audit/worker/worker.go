// Package worker relays audit outbox rows to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "tcr/pkg/platform/audit"
	"tcr/pkg/platform/audit/store/postgres"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outbox is the relay's view of the outbox table.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher produces one record.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// TopicFor maps an event type to its Kafka topic.
type TopicFor func(eventType string) string

// CategoryTopics routes each event to "<prefix>.<category>".
func CategoryTopics(prefix string) TopicFor {
	return func(eventType string) string {
		return prefix + "." + string(audit.AuditEvent(eventType).Category())
	}
}

var relayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tcr_audit_outbox_relayed_total",
	Help: "Outbox rows relayed to Kafka, by result",
}, []string{"result"})

// Relay polls the outbox and publishes unpublished rows in creation order.
// A row is marked published only after the broker acknowledged it, so delivery
// is at-least-once; consumers dedupe on the event id carried as record key.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	topicFor  TopicFor
	logger    *slog.Logger
	interval  time.Duration
	batch     int
}

// Option configures the Relay.
type Option func(*Relay)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize sets how many rows one poll relays at most.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func NewRelay(outbox Outbox, publisher Publisher, topicFor TopicFor, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		topicFor:  topicFor,
		logger:    logger,
		interval:  time.Second,
		batch:     100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were relayed. It
// stops at the first publish failure so ordering is preserved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.ListUnpublished(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	var done []uuid.UUID
	var publishErr error
	for _, e := range entries {
		if err := r.publisher.Publish(ctx, r.topicFor(e.EventType), []byte(e.ID.String()), e.Payload); err != nil {
			relayed.WithLabelValues("error").Inc()
			publishErr = err
			break
		}
		relayed.WithLabelValues("ok").Inc()
		done = append(done, e.ID)
	}
	if err := r.outbox.MarkPublished(ctx, done); err != nil {
		return 0, err
	}
	return len(done), publishErr
}
