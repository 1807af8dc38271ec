package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tcr/internal/platform/kafka/consumer"
	audit "tcr/pkg/platform/audit"

	"github.com/google/uuid"
)

// EventStore materialises consumed audit events for querying.
type EventStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// Handler processes audit events relayed from the outbox.
// Compliance events must carry a subject; security events need not.
type Handler struct {
	store  EventStore
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates an audit event handler.
func NewHandler(store EventStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Handle processes one audit event. Malformed messages are logged and
// committed; only store failures are returned for retry.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: failed to parse audit event ID",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	var payload audit.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: failed to unmarshal audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	event := payload.Event(h.now())
	if event.Category == audit.CategoryCompliance && event.Subject == "" {
		h.logger.ErrorContext(ctx, "CRITICAL: compliance event missing subject",
			"event_id", eventID,
			"action", event.Action,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}

	h.logger.DebugContext(ctx, "stored audit event",
		"event_id", eventID,
		"category", event.Category,
		"action", event.Action,
	)
	return nil
}
