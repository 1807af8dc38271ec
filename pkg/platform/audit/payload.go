package audit

import (
	"time"
)

// Payload is the JSON structure carried by outbox rows and Kafka messages.
// Field names match Event so consumers can decode straight into it.
type Payload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	Subject   string `json:"Subject"`
	Action    string `json:"Action"`
	ActorID   string `json:"ActorID,omitempty"`
	DisputeID string `json:"DisputeID,omitempty"`
	Amount    string `json:"Amount,omitempty"`
	Decision  string `json:"Decision,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	IP        string `json:"IP,omitempty"`
	Device    string `json:"Device,omitempty"`
}

// NewPayload builds the wire shape for event. The category is always derived
// from the action so producers cannot mislabel an event.
func NewPayload(eventID string, event Event) Payload {
	category := AuditEvent(event.Action).Category()
	if event.Category != "" && category == CategoryOperations {
		category = event.Category
	}
	return Payload{
		ID:        eventID,
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		ActorID:   event.ActorID,
		DisputeID: event.DisputeID,
		Amount:    event.Amount,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		IP:        event.IP,
		Device:    event.Device,
	}
}

// Event converts the payload back to the storage shape. A missing or
// malformed timestamp falls back to now.
func (p Payload) Event(now time.Time) Event {
	ts := now
	if p.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			ts = parsed
		}
	}
	return Event{
		Category:  EventCategory(p.Category),
		Timestamp: ts,
		Subject:   p.Subject,
		Action:    p.Action,
		ActorID:   p.ActorID,
		DisputeID: p.DisputeID,
		Amount:    p.Amount,
		Decision:  p.Decision,
		Reason:    p.Reason,
		RequestID: p.RequestID,
		IP:        p.IP,
		Device:    p.Device,
	}
}
