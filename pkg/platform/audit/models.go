package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events that move or lock funds. These are the
	// registry's financial record and require guaranteed persistence.
	// Examples: request submitted, dispute ruled, payout recorded.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: rejected arbitrator callbacks, invalid party tokens.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine events useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is the storage shape shared by every category. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the item key (hex) the event is about.
	Subject string
	Action  string
	// ActorID is the party address that caused the event, or "arbitrator".
	ActorID   string
	DisputeID string
	Amount    string
	Decision  string
	Reason    string
	RequestID string
	IP        string
	Device    string
}

type AuditEvent string

const (
	// Protocol events
	EventRegistrationRequested AuditEvent = "registration_requested"
	EventClearingRequested     AuditEvent = "clearing_requested"
	EventRequestChallenged     AuditEvent = "request_challenged"
	EventRequestExecuted       AuditEvent = "request_executed"
	EventDisputeRuled          AuditEvent = "dispute_ruled"
	EventPayoutRecorded        AuditEvent = "payout_recorded"

	// Security events
	EventArbitratorRejected AuditEvent = "arbitrator_callback_rejected"
	EventRulingReplayed     AuditEvent = "ruling_replayed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationRequested: CategoryCompliance,
	EventClearingRequested:     CategoryCompliance,
	EventRequestChallenged:     CategoryCompliance,
	EventRequestExecuted:       CategoryCompliance,
	EventDisputeRuled:          CategoryCompliance,
	EventPayoutRecorded:        CategoryCompliance,

	EventArbitratorRejected: CategorySecurity,
	EventRulingReplayed:     CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Implementations must honour a transaction
// carried in ctx (pkg/platform/tx) so events commit with the state they describe.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// ComplianceEvent captures a fund-moving action requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time // When the event occurred (set automatically if zero)
	Subject   string    // Item key (required)
	Action    string    // The action taken (required)
	ActorID   string    // Party address
	DisputeID string
	Amount    string // Decimal amount moved or escrowed
	Decision  string // Resulting status or ruling
	RequestID string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the storage shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    e.Action,
		ActorID:   e.ActorID,
		DisputeID: e.DisputeID,
		Amount:    e.Amount,
		Decision:  e.Decision,
		RequestID: e.RequestID,
	}
}

// SecurityEvent captures security-relevant actions for alerting.
type SecurityEvent struct {
	Timestamp time.Time
	Subject   string
	Action    string
	Reason    string
	IP        string
	Device    string // Browser/OS label parsed from the User-Agent
	RequestID string
	Severity  Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category returns CategorySecurity (always).
func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

// ToEvent converts to the storage shape.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    e.Action,
		Reason:    e.Reason,
		IP:        e.IP,
		Device:    e.Device,
		RequestID: e.RequestID,
		Decision:  string(e.Severity),
	}
}
