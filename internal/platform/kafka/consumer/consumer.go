// Package consumer runs a franz-go consumer group and hands each record to a Handler.
//
// Offsets are committed manually after a record is handled. A handler that
// returns nil commits the record, including malformed records the handler
// chose to skip. A handler error wrapped with Permanent is logged and
// committed. Any other error is retried with a capped backoff until it
// succeeds or the consumer stops, so the record is never committed unhandled.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-neutral view of a consumed record.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp time.Time
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The record is committed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Handler processes one message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config holds consumer group settings.
type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
	// MaxAttempts is the number of failures after which a stuck record is
	// reported as critical. Retrying continues.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	cfg.MaxBackoff = max(cfg.MaxBackoff, cfg.Backoff)
	return cfg
}

// Consumer polls its topics and dispatches records in partition order.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
	cfg     Config
}

// New joins the consumer group. Consumption starts at the earliest offset for
// a group without commits.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka consumer requires a group and topics")
	}
	cfg = cfg.withDefaults()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger, cfg: cfg}, nil
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handled []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			if c.dispatch(ctx, r) {
				handled = append(handled, r)
			}
		})
		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka commit failed", "records", len(handled), "error", err)
		}
	}
}

// dispatch hands r to the handler and reports whether it may be committed.
// It returns false only when ctx is cancelled before the record is handled.
func (c *Consumer) dispatch(ctx context.Context, r *kgo.Record) bool {
	msg := &Message{
		Topic:     r.Topic,
		Key:       r.Key,
		Value:     r.Value,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp,
	}
	backoff := c.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}
		if IsPermanent(err) {
			c.logger.WarnContext(ctx, "kafka record rejected, committing",
				"topic", r.Topic,
				"partition", r.Partition,
				"offset", r.Offset,
				"error", err,
			)
			return true
		}
		level := slog.LevelWarn
		msgText := "kafka handler failed, retrying"
		if attempt >= c.cfg.MaxAttempts {
			level = slog.LevelError
			msgText = "CRITICAL: kafka record stuck, retrying"
		}
		c.logger.Log(ctx, level, msgText,
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}
