package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a kind of business occurrence. The set is closed:
// producers must validate with ParseEventType before handing an event to the
// dispatcher.
type EventType string

const (
	// Call events
	EventCallStarted     EventType = "call.started"
	EventCallEnded       EventType = "call.ended"
	EventCallMissed      EventType = "call.missed"
	EventCallTransferred EventType = "call.transferred"

	// Appointment events
	EventAppointmentBooked      EventType = "appointment.booked"
	EventAppointmentConfirmed   EventType = "appointment.confirmed"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentReminder    EventType = "appointment.reminder"

	// Lead events
	EventLeadCreated   EventType = "lead.created"
	EventLeadQualified EventType = "lead.qualified"
	EventLeadConverted EventType = "lead.converted"

	// SMS events
	EventSMSSent     EventType = "sms.sent"
	EventSMSReceived EventType = "sms.received"
	EventSMSOptOut   EventType = "sms.opt_out"

	// Campaign events
	EventCampaignStarted   EventType = "campaign.started"
	EventCampaignCompleted EventType = "campaign.completed"

	// Custom
	EventCustom EventType = "custom"
)

var eventTypes = map[EventType]struct{}{
	EventCallStarted: {}, EventCallEnded: {}, EventCallMissed: {}, EventCallTransferred: {},
	EventAppointmentBooked: {}, EventAppointmentConfirmed: {}, EventAppointmentCancelled: {},
	EventAppointmentRescheduled: {}, EventAppointmentReminder: {},
	EventLeadCreated: {}, EventLeadQualified: {}, EventLeadConverted: {},
	EventSMSSent: {}, EventSMSReceived: {}, EventSMSOptOut: {},
	EventCampaignStarted: {}, EventCampaignCompleted: {},
	EventCustom: {},
}

// ParseEventType validates s against the closed event type set.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if _, ok := eventTypes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

func (t EventType) String() string {
	return string(t)
}

// Event is a typed occurrence raised by a collaborator (call handler,
// booking handler, SMS handler, campaign runner). It is consumed immediately
// by the dispatcher and not persisted by this subsystem.
type Event struct {
	Type       EventType      `json:"type"`
	BusinessID string         `json:"business_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Envelope is the wire format POSTed to subscriber endpoints. The signature
// covers the exact serialized bytes of this structure.
type Envelope struct {
	Event      string          `json:"event"`
	Timestamp  string          `json:"timestamp"`
	BusinessID string          `json:"business_id"`
	Data       json.RawMessage `json:"data"`
}
