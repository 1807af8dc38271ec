// Package arbitrator provides the registry's dispute resolvers: an in-process
// centralized arbitrator and an HTTP client for an external one.
package arbitrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	"tcr/internal/registry/ruling"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
)

// Dispute is a dispute raised with the centralized arbitrator.
type Dispute struct {
	ID        id.DisputeID       `json:"id"`
	Key       id.ItemKey         `json:"item_key"`
	Kind      models.RequestKind `json:"-"`
	KindName  string             `json:"kind"`
	ExtraData string             `json:"extra_data,omitempty"`
	Evidence  string             `json:"evidence,omitempty"`
	Fee       models.Amount      `json:"fee"`
	OpenedAt  time.Time          `json:"opened_at"`
	Ruled     bool               `json:"ruled"`
	Ruling    models.Ruling      `json:"ruling"`
}

// Delivery hands a ruling to the registry.
type Delivery interface {
	Deliver(ctx context.Context, msg ruling.Message) error
}

// SinkDelivery calls the registry in process.
type SinkDelivery struct {
	Sink ports.RulingSink
}

func (d SinkDelivery) Deliver(ctx context.Context, msg ruling.Message) error {
	return d.Sink.OnRuling(ctx, msg.DisputeID, msg.Ruling)
}

// Publisher produces a record to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// TopicDelivery publishes rulings to the ruling topic.
type TopicDelivery struct {
	Publisher Publisher
	Topic     string
}

func (d TopicDelivery) Deliver(ctx context.Context, msg ruling.Message) error {
	value, err := msg.Encode()
	if err != nil {
		return err
	}
	return d.Publisher.Publish(ctx, d.Topic, msg.Key(), value)
}

// Centralized is a single-party arbitrator with a flat fee and sequential
// dispute ids. Rulings are given explicitly through GiveRuling.
type Centralized struct {
	mu       sync.Mutex
	fee      models.Amount
	lastID   id.DisputeID
	disputes map[id.DisputeID]*Dispute
	delivery Delivery
	logger   *slog.Logger
	now      func() time.Time
}

type CentralizedOption func(*Centralized)

func WithDelivery(d Delivery) CentralizedOption {
	return func(c *Centralized) {
		c.delivery = d
	}
}

func WithLogger(logger *slog.Logger) CentralizedOption {
	return func(c *Centralized) {
		c.logger = logger
	}
}

func WithClock(now func() time.Time) CentralizedOption {
	return func(c *Centralized) {
		c.now = now
	}
}

// WithLastDisputeID starts numbering after last, so ids already known to a
// persistent ledger are not handed out again after a restart.
func WithLastDisputeID(last id.DisputeID) CentralizedOption {
	return func(c *Centralized) {
		c.lastID = last
	}
}

// NewCentralized creates an arbitrator charging fee per dispute.
func NewCentralized(fee models.Amount, opts ...CentralizedOption) *Centralized {
	c := &Centralized{
		fee:      fee,
		disputes: make(map[id.DisputeID]*Dispute),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDelivery wires the delivery after construction, for when the registry
// that receives rulings is built from this arbitrator.
func (c *Centralized) SetDelivery(d Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivery = d
}

func (c *Centralized) QuoteCost(_ context.Context, _ string) (models.Amount, error) {
	return c.fee, nil
}

// OpenDispute records the dispute and returns the next id. Ids start at 1
// unless seeded with WithLastDisputeID.
func (c *Centralized) OpenDispute(_ context.Context, req ports.DisputeRequest) (id.DisputeID, error) {
	if req.Fee < c.fee {
		return 0, dErrors.Newf(dErrors.CodeInsufficientPayment, "arbitration fee %s is below cost %s", req.Fee, c.fee)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	d := &Dispute{
		ID:        c.lastID,
		Key:       req.Key,
		Kind:      req.Kind,
		KindName:  req.Kind.String(),
		ExtraData: req.ExtraData,
		Evidence:  req.Evidence,
		Fee:       req.Fee,
		OpenedAt:  c.now(),
	}
	c.disputes[d.ID] = d
	if c.logger != nil {
		c.logger.Info("dispute opened", "dispute_id", d.ID.String(), "item_key", d.Key.Hex())
	}
	return d.ID, nil
}

// GiveRuling delivers a final ruling. A dispute is ruled once; the ruling is
// recorded only after delivery succeeds so a failed delivery can be retried.
func (c *Centralized) GiveRuling(ctx context.Context, disputeID id.DisputeID, r models.Ruling) error {
	if !r.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %d", r)
	}
	c.mu.Lock()
	d, ok := c.disputes[disputeID]
	ruled := ok && d.Ruled
	delivery := c.delivery
	c.mu.Unlock()
	if !ok {
		return dErrors.Newf(dErrors.CodeUnknownDispute, "dispute %s was not raised here", disputeID)
	}
	if ruled {
		return dErrors.Newf(dErrors.CodeAlreadyResolved, "dispute %s is already ruled", disputeID)
	}
	if delivery == nil {
		return dErrors.New(dErrors.CodeUnavailable, "no ruling delivery configured")
	}

	if err := delivery.Deliver(ctx, ruling.Message{DisputeID: disputeID, Ruling: r}); err != nil {
		return err
	}

	c.mu.Lock()
	d.Ruled = true
	d.Ruling = r
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.InfoContext(ctx, "ruling given", "dispute_id", disputeID.String(), "ruling", r.String())
	}
	return nil
}

// Dispute returns a copy of a raised dispute.
func (c *Centralized) Dispute(disputeID id.DisputeID) (Dispute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.disputes[disputeID]
	if !ok {
		return Dispute{}, false
	}
	return *d, true
}

// Pending lists disputes awaiting a ruling, oldest first.
func (c *Centralized) Pending() []Dispute {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Dispute, 0, len(c.disputes))
	for _, d := range c.disputes {
		if !d.Ruled {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
