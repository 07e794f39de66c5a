package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Endpoint is a business's subscription to events, delivered to one URL.
//
// Secret is immutable after creation and returned to the caller exactly once,
// in the registration response. SuccessCount and FailureCount reflect
// completed deliveries (after retries are exhausted), not individual HTTP
// attempts, and only ever increase. Counter mutation is owned by the
// registry, not by callers holding an Endpoint value.
type Endpoint struct {
	ID            string            `json:"id"`
	BusinessID    string            `json:"business_id"`
	URL           string            `json:"url"`
	Events        []EventType       `json:"events"`
	Secret        string            `json:"-"`
	Headers       map[string]string `json:"headers,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	LastTriggered *time.Time        `json:"last_triggered,omitempty"`
	SuccessCount  int64             `json:"success_count"`
	FailureCount  int64             `json:"failure_count"`
}

// Validate checks configuration invariants at registration time.
// Delivery never sees a misconfigured endpoint.
func (e *Endpoint) Validate() error {
	u, err := url.Parse(e.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint url must be http(s)", ErrInvalidInput)
	}
	if e.BusinessID == "" {
		return fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}
	for _, t := range e.Events {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownEventType, t)
		}
	}
	for name := range e.Headers {
		if IsReservedHeader(name) {
			return fmt.Errorf("%w: header %q is reserved", ErrInvalidInput, name)
		}
	}
	return nil
}

// SubscribedTo reports whether the endpoint receives the given event type.
// An empty subscription list receives nothing.
func (e *Endpoint) SubscribedTo(eventType EventType) bool {
	for _, t := range e.Events {
		if t == eventType {
			return true
		}
	}
	return false
}
