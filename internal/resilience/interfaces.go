// Package resilience provides rate limiting and circuit breaker
// implementations for protecting subscriber endpoints from overload.
package resilience

import "context"

// RateLimiter limits the delivery rate per endpoint. Implementations may be
// in-memory (single instance) or Redis-backed (shared across instances).
type RateLimiter interface {
	// Allow reports whether a delivery to the endpoint may proceed now.
	Allow(ctx context.Context, endpointID string) (bool, error)
}

// CircuitBreaker stops deliveries to endpoints that keep failing.
type CircuitBreaker interface {
	// Allow reports whether the endpoint's breaker admits a delivery.
	Allow(ctx context.Context, endpointID string) (bool, error)
	// RecordSuccess feeds a successful attempt into the breaker.
	RecordSuccess(ctx context.Context, endpointID string) error
	// RecordFailure feeds a failed attempt into the breaker.
	RecordFailure(ctx context.Context, endpointID string) error
	// State returns the endpoint's current breaker state.
	State(ctx context.Context, endpointID string) (CircuitBreakerState, error)
}

// InMemoryRateLimiter adapts RateLimiterManager to the RateLimiter interface.
type InMemoryRateLimiter struct {
	manager *RateLimiterManager
}

func NewInMemoryRateLimiter(config RateLimiterConfig) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{manager: NewRateLimiterManager(config)}
}

func (a *InMemoryRateLimiter) Allow(ctx context.Context, endpointID string) (bool, error) {
	return a.manager.Allow(endpointID), nil
}

// InMemoryCircuitBreaker adapts CircuitBreakerManager to the CircuitBreaker
// interface. gobreaker only moves its counters through Execute, so the
// Record* methods drive a zero-work Execute call.
type InMemoryCircuitBreaker struct {
	manager *CircuitBreakerManager
}

func NewInMemoryCircuitBreaker(config CircuitBreakerConfig) *InMemoryCircuitBreaker {
	return &InMemoryCircuitBreaker{manager: NewCircuitBreakerManager(config)}
}

func (a *InMemoryCircuitBreaker) Allow(ctx context.Context, endpointID string) (bool, error) {
	return a.manager.State(endpointID) != CircuitBreakerStateOpen, nil
}

func (a *InMemoryCircuitBreaker) RecordSuccess(ctx context.Context, endpointID string) error {
	a.manager.Record(endpointID, true)
	return nil
}

func (a *InMemoryCircuitBreaker) RecordFailure(ctx context.Context, endpointID string) error {
	a.manager.Record(endpointID, false)
	return nil
}

func (a *InMemoryCircuitBreaker) State(ctx context.Context, endpointID string) (CircuitBreakerState, error) {
	return a.manager.State(endpointID), nil
}

// OnStateChange sets a callback for circuit breaker state changes.
func (a *InMemoryCircuitBreaker) OnStateChange(fn func(endpointID string, from, to CircuitBreakerState)) {
	a.manager.OnStateChange(fn)
}
