package ruling

import (
	"context"
	"log/slog"

	"tcr/internal/platform/kafka/consumer"
	"tcr/internal/registry/ports"
	dErrors "tcr/pkg/domain-errors"
)

// Handler applies rulings consumed from the ruling topic.
type Handler struct {
	sink   ports.RulingSink
	logger *slog.Logger
}

// NewHandler creates a ruling handler delivering to sink.
func NewHandler(sink ports.RulingSink, logger *slog.Logger) *Handler {
	return &Handler{sink: sink, logger: logger}
}

// Handle applies one ruling. Replays are committed; malformed messages and
// rulings the ledger rejects are returned as permanent. Everything else is
// retried, including an unknown dispute, since the ruling may race the commit
// of the challenge that opened it.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	m, err := Decode(msg.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: dropping malformed ruling",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return consumer.Permanent(err)
	}

	err = h.sink.OnRuling(ctx, m.DisputeID, m.Ruling)
	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "ruling applied",
			"dispute_id", m.DisputeID.String(),
			"ruling", m.Ruling.String(),
		)
		return nil
	case dErrors.HasCode(err, dErrors.CodeAlreadyResolved):
		h.logger.InfoContext(ctx, "ruling replay ignored", "dispute_id", m.DisputeID.String())
		return nil
	case dErrors.HasCode(err, dErrors.CodeInvalidInput),
		dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		h.logger.ErrorContext(ctx, "CRITICAL: ruling rejected",
			"dispute_id", m.DisputeID.String(),
			"ruling", m.Ruling.String(),
			"error", err,
		)
		return consumer.Permanent(err)
	default:
		return err
	}
}
