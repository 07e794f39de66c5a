// Rate limiting uses golang.org/x/time/rate, the Go team's token bucket.
package resilience

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines the per-endpoint rate limiting parameters.
//
// RequestsPerSecond controls the steady-state rate of allowed deliveries.
// BurstSize allows temporary spikes above the rate limit.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         10,
	}
}

// RateLimiterManager maintains per-endpoint rate limiters, lazily created
// with double-checked locking. Each endpoint gets its own independent
// limiter so one slow destination cannot starve the others.
type RateLimiterManager struct {
	config   RateLimiterConfig
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

func NewRateLimiterManager(config RateLimiterConfig) *RateLimiterManager {
	return &RateLimiterManager{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetLimiter returns the rate limiter for an endpoint, creating one if needed.
func (m *RateLimiterManager) GetLimiter(endpointID string) *rate.Limiter {
	m.mu.RLock()
	limiter, exists := m.limiters[endpointID]
	m.mu.RUnlock()

	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists = m.limiters[endpointID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.BurstSize)
	m.limiters[endpointID] = limiter
	return limiter
}

// Allow reports whether a delivery to the endpoint is allowed right now.
func (m *RateLimiterManager) Allow(endpointID string) bool {
	return m.GetLimiter(endpointID).Allow()
}

// SetRate configures a custom rate limit for a specific endpoint.
func (m *RateLimiterManager) SetRate(endpointID string, requestsPerSecond float64, burstSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[endpointID] = rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)
}

// Remove deletes the rate limiter for an endpoint, freeing memory.
// Should be called when an endpoint is deregistered.
func (m *RateLimiterManager) Remove(endpointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limiters, endpointID)
}
