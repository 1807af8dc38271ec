package consumer

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"tcr/internal/platform/kafka/consumer"
	audit "tcr/pkg/platform/audit"
)

// TopicHandler handles messages from one audit topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches audit records by category. The relay publishes each
// category to "<prefix>.<category>", so the category is the topic suffix.
type Router struct {
	prefix   string
	handlers map[audit.EventCategory]TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a router for the topics under prefix.
func NewRouter(prefix string, logger *slog.Logger) *Router {
	return &Router{
		prefix:   prefix,
		handlers: make(map[audit.EventCategory]TopicHandler),
		logger:   logger,
	}
}

// Register routes one category's topic to handler.
func (r *Router) Register(category audit.EventCategory, handler TopicHandler) {
	r.handlers[category] = handler
}

// Topics lists the topics the registered categories are published to, for
// the consumer subscription.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for category := range r.handlers {
		topics = append(topics, r.prefix+"."+string(category))
	}
	sort.Strings(topics)
	return topics
}

// Handle routes the message to its category's handler. Records on topics
// outside the prefix or for unregistered categories are committed and skipped.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	suffix, ok := strings.CutPrefix(msg.Topic, r.prefix+".")
	if ok {
		if handler, found := r.handlers[audit.EventCategory(suffix)]; found {
			return handler.Handle(ctx, msg)
		}
	}
	r.logger.WarnContext(ctx, "no handler for audit topic, skipping message",
		"topic", msg.Topic,
		"key", string(msg.Key),
	)
	return nil
}
