package domain

import "fmt"

// Operator compares an event payload field against a configured value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpExists      Operator = "exists"
)

// Condition is one field/operator/value triple. Field is looked up in the
// event payload's top-level keys; there is no nested path support.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// ActionType is the closed set of automation actions. Each type is mapped to
// a statically typed handler through a registration map built at startup.
type ActionType string

const (
	ActionForwardWebhook   ActionType = "send_to_webhook"
	ActionSendToZapier     ActionType = "send_to_zapier"
	ActionSendToMake       ActionType = "send_to_make"
	ActionCreateGHLContact ActionType = "create_ghl_contact"
	ActionCreateHubSpot    ActionType = "create_hubspot_contact"
	ActionNotifySlack      ActionType = "notify_slack"
)

// Action is one configured action descriptor on a rule. Params carry the
// action-specific configuration (target URL, API key, tags, ...).
type Action struct {
	Type   ActionType        `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// Rule is a declarative subscriber: when an event of TriggerEvent arrives for
// the rule's business and every condition passes (logical AND, empty list
// always passes), the actions fire in order.
type Rule struct {
	ID           string      `json:"id"`
	BusinessID   string      `json:"business_id"`
	Name         string      `json:"name"`
	TriggerEvent EventType   `json:"trigger_event"`
	Conditions   []Condition `json:"conditions,omitempty"`
	Actions      []Action    `json:"actions,omitempty"`
	Active       bool        `json:"active"`
}

// Validate checks rule configuration at creation time.
func (r *Rule) Validate() error {
	if r.BusinessID == "" {
		return fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}
	if !r.TriggerEvent.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, r.TriggerEvent)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: rule needs at least one action", ErrInvalidInput)
	}
	return nil
}

// Prebuilt rule templates mirroring the product's one-click automations.

// MissedCallToGHL creates a GoHighLevel contact for every missed call.
func MissedCallToGHL(businessID string, params map[string]string) *Rule {
	return &Rule{
		BusinessID:   businessID,
		Name:         "Missed Call → GoHighLevel Contact",
		TriggerEvent: EventCallMissed,
		Actions:      []Action{{Type: ActionCreateGHLContact, Params: params}},
		Active:       true,
	}
}

// AppointmentToZapier forwards every booked appointment to a Zapier hook.
func AppointmentToZapier(businessID string, params map[string]string) *Rule {
	return &Rule{
		BusinessID:   businessID,
		Name:         "New Appointment → Zapier",
		TriggerEvent: EventAppointmentBooked,
		Actions:      []Action{{Type: ActionSendToZapier, Params: params}},
		Active:       true,
	}
}

// LeadToHubSpot creates a HubSpot contact for every new lead.
func LeadToHubSpot(businessID string, params map[string]string) *Rule {
	return &Rule{
		BusinessID:   businessID,
		Name:         "New Lead → HubSpot",
		TriggerEvent: EventLeadCreated,
		Actions:      []Action{{Type: ActionCreateHubSpot, Params: params}},
		Active:       true,
	}
}

// LongCallToSlack notifies Slack about calls longer than a minute.
func LongCallToSlack(businessID string, params map[string]string) *Rule {
	return &Rule{
		BusinessID:   businessID,
		Name:         "Call Ended → Slack Notification",
		TriggerEvent: EventCallEnded,
		Conditions: []Condition{
			{Field: "duration", Operator: OpGreaterThan, Value: 60},
		},
		Actions: []Action{{Type: ActionNotifySlack, Params: params}},
		Active:  true,
	}
}
