// Package publisher provides a best-effort audit publisher for security events.
//
// Unlike the compliance publisher, a failure here never fails the caller. In
// async mode events are queued on a bounded buffer and written by a background
// goroutine; a full buffer drops the event and counts it.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	audit "tcr/pkg/platform/audit"
)

// Publisher writes audit events to a store, optionally through an async buffer.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer  chan audit.Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of the given size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for dropped or failed events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher. Without WithAsyncBuffer every Emit writes
// synchronously.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. In sync mode a store error is returned; in async mode
// Emit only fails when ctx is already cancelled.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.store.Append(ctx, event)
	}
	select {
	case p.buffer <- event:
	default:
		p.dropped.Add(1)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"subject", event.Subject,
			)
		}
	}
	return nil
}

// EmitSecurity is a convenience wrapper for security events.
func (p *Publisher) EmitSecurity(ctx context.Context, event audit.SecurityEvent) error {
	return p.Emit(ctx, event.ToEvent())
}

// List returns the events recorded for subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Dropped reports how many events the async buffer discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	}
}
