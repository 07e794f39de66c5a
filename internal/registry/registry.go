// Package registry stores per-business endpoint and rule configuration.
//
// Two implementations share the interfaces: an in-memory store matching the
// reference behavior (state lost on restart) and a Postgres-backed store for
// deployments that need configuration to survive restarts.
package registry

import (
	"context"
	"time"

	"github.com/colin330smith/callbot-ai/internal/domain"
)

// EndpointStore owns endpoint records, including their delivery counters.
// Lookups never fail on absence: List returns an empty slice and Deregister
// returns false for unknown IDs.
type EndpointStore interface {
	Register(ctx context.Context, ep *domain.Endpoint) error
	Deregister(ctx context.Context, businessID, endpointID string) (bool, error)
	List(ctx context.Context, businessID string) ([]*domain.Endpoint, error)
	Get(ctx context.Context, businessID, endpointID string) (*domain.Endpoint, error)

	// RecordOutcome increments exactly one of the endpoint's counters and
	// stamps last_triggered. It is called once per completed delivery
	// (after retries are exhausted), never per HTTP attempt, and must be
	// atomic with respect to concurrent deliveries to the same endpoint.
	RecordOutcome(ctx context.Context, businessID, endpointID string, success bool, at time.Time) error
}

// RuleStore owns automation rule records.
type RuleStore interface {
	Create(ctx context.Context, rule *domain.Rule) error
	Delete(ctx context.Context, businessID, ruleID string) (bool, error)
	List(ctx context.Context, businessID string) ([]*domain.Rule, error)
}
