package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tcr/internal/registry/metrics"
	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	"tcr/pkg/attrs"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	"tcr/pkg/platform/audit"
	"tcr/pkg/platform/sentinel"
	"tcr/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store persists the item ledger, the resolved-dispute set and recorded payouts.
// Implementations return sentinel errors; the service translates them.
type Store interface {
	FindByKey(ctx context.Context, key id.ItemKey) (*models.Item, error)
	FindByDisputeID(ctx context.Context, disputeID id.DisputeID) (*models.Item, error)
	Save(ctx context.Context, item *models.Item) error
	Count(ctx context.Context) (int, error)
	// ListInOrder walks items by insertion order until fn returns false.
	ListInOrder(ctx context.Context, descending bool, fn func(*models.Item) bool) error
	MarkResolved(ctx context.Context, disputeID id.DisputeID, key id.ItemKey, ruling models.Ruling, at time.Time) error
	IsResolved(ctx context.Context, disputeID id.DisputeID) (bool, error)
	RecordPayouts(ctx context.Context, payouts []models.Payout) error
	ListPayouts(ctx context.Context, to id.Address) ([]models.Payout, error)
}

// StoreTx runs fn atomically against the store, serialised per item key.
// The key travels in ctx (see WithLockKey).
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// RulingGuard is a fast-path replay filter in front of the resolved-dispute set.
// It is advisory: the store remains the source of truth.
type RulingGuard interface {
	Seen(ctx context.Context, disputeID id.DisputeID) (bool, error)
	Remember(ctx context.Context, disputeID id.DisputeID) error
}

// AuditPublisher records fund-moving events. Emit is called inside the
// transaction; an error aborts the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// SecurityPublisher records security-relevant events, best effort.
type SecurityPublisher interface {
	EmitSecurity(ctx context.Context, event audit.SecurityEvent) error
}

// Service runs the registry protocol: requests, challenges, execution,
// ruling settlement and queries.
type Service struct {
	params     models.RegistryParams
	store      Store
	tx         StoreTx
	arbitrator ports.Arbitrator
	guard      RulingGuard
	logger     *slog.Logger
	audit      AuditPublisher
	security   SecurityPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithSecurityPublisher(publisher SecurityPublisher) Option {
	return func(s *Service) {
		s.security = publisher
	}
}

func WithRulingGuard(guard RulingGuard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithStoreTx replaces the default in-process transaction with tx, e.g. a
// database transaction.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// New constructs a Service. Without WithStoreTx, mutations are serialised by
// an in-process sharded lock over store.
func New(params models.RegistryParams, store Store, arbitrator ports.Arbitrator, opts ...Option) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if store == nil || arbitrator == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "store and arbitrator are required")
	}
	s := &Service{
		params:     params,
		store:      store,
		arbitrator: arbitrator,
		tracer:     otel.Tracer("tcr/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store)
	}
	return s, nil
}

// Params returns the registry configuration.
func (s *Service) Params() models.RegistryParams {
	return s.params
}

func (s *Service) startSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(kv...))
}

// finish closes the span and records the outcome of an operation.
func (s *Service) finish(span trace.Span, action string, start time.Time, err error) {
	defer span.End()
	if s.metrics != nil {
		s.metrics.ObserveOperation(action, start)
	}
	if err == nil {
		s.incrementOperation(action)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
	s.incrementRejection(action, string(dErrors.CodeOf(err)))
}

func (s *Service) runInTx(ctx context.Context, key id.ItemKey, fn func(ctx context.Context, store Store) error) error {
	return s.tx.RunInTx(WithLockKey(ctx, key.Hex()), fn)
}

// load returns the item for key, or the logical Absent item.
func (s *Service) load(ctx context.Context, store Store, key id.ItemKey) (*models.Item, error) {
	item, err := store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.NewAbsentItem(key), nil
		}
		return nil, translateStoreErr(err, "failed to load item")
	}
	return item, nil
}

func (s *Service) quote(ctx context.Context) (models.Amount, error) {
	cost, err := s.arbitrator.QuoteCost(ctx, s.params.ArbitratorExtraData)
	if err != nil {
		return 0, translateArbitratorErr(err, "failed to quote arbitration cost")
	}
	return cost, nil
}

func requireCaller(ctx context.Context) (id.Address, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "an authenticated party is required")
	}
	return caller, nil
}

// requirePayment returns the deposit due and the change owed to the payer.
func (s *Service) requirePayment(payment, cost models.Amount) (models.Amount, models.Amount, error) {
	required, err := s.params.Stake.Add(cost)
	if err != nil {
		return 0, 0, err
	}
	if payment < required {
		return 0, 0, dErrors.Newf(dErrors.CodeInsufficientPayment, "payment %s is below stake plus arbitration cost %s", payment, required)
	}
	return required, payment - required, nil
}

func translateStoreErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeAlreadyResolved, msg)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func translateArbitratorErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}

// emit publishes a compliance event. Inside a database transaction the event
// joins the transaction; inside an in-process one it is held until the staged
// writes commit, and a publish failure then is logged.
func (s *Service) emit(ctx context.Context, event audit.ComplianceEvent) error {
	if s.audit == nil {
		return nil
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	deferred := deferUntilCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Emit(ctx, event); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "audit event lost after commit",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	})
	if deferred {
		return nil
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

func (s *Service) logSecurity(ctx context.Context, event audit.AuditEvent, subject, reason string, attributes ...any) {
	attributes = append(attributes, "subject", subject, "reason", reason)
	if s.logger != nil {
		s.logger.WarnContext(ctx, string(event), append(attributes, "log_type", "security")...)
	}
	if s.security == nil {
		return
	}
	_ = s.security.EmitSecurity(ctx, audit.SecurityEvent{
		Timestamp: requestcontext.Now(ctx),
		Subject:   attrs.String(attributes, "subject"),
		Action:    string(event),
		Reason:    attrs.String(attributes, "reason"),
		IP:        requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Severity:  audit.SeverityWarning,
	})
}

func (s *Service) incrementOperation(action string) {
	if s.metrics != nil {
		s.metrics.IncOperation(action)
	}
}

func (s *Service) incrementRejection(action, code string) {
	if s.metrics != nil {
		s.metrics.IncRejection(action, code)
	}
}

func (s *Service) incrementDisputeOpened() {
	if s.metrics != nil {
		s.metrics.IncDisputeOpened()
	}
}

func (s *Service) recordPayoutMetrics(payouts []models.Payout) {
	if s.metrics == nil {
		return
	}
	for _, p := range payouts {
		s.metrics.AddPayout(string(p.Reason), uint64(p.Amount))
	}
}
