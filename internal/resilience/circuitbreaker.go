package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Circuit breakers use github.com/sony/gobreaker. Each endpoint gets an
// independent breaker so a single failing destination cannot affect
// deliveries to healthy ones.
//
// State transitions:
//
//	[Closed] ---(failure threshold reached)---> [Open]
//	[Open] ---(timeout expires)---> [Half-Open]
//	[Half-Open] ---(success)---> [Closed]
//	[Half-Open] ---(failure)---> [Open]

// CircuitBreakerConfig defines the circuit breaker behavior.
//
// MaxRequests is the maximum number of requests allowed in half-open state.
// Interval is the cyclic period for clearing internal counts while closed.
// Timeout is how long to wait in open state before transitioning to half-open.
// FailureRatio is the failure percentage threshold to trip the breaker (0.0-1.0).
// MinRequests is the minimum requests needed before failure ratio is evaluated.
type CircuitBreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  5,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState string

const (
	CircuitBreakerStateClosed   CircuitBreakerState = "closed"
	CircuitBreakerStateOpen     CircuitBreakerState = "open"
	CircuitBreakerStateHalfOpen CircuitBreakerState = "half-open"
)

var errRecordedFailure = errors.New("recorded delivery failure")

// CircuitBreakerManager maintains per-endpoint circuit breakers.
type CircuitBreakerManager struct {
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex

	onStateChange func(endpointID string, from, to CircuitBreakerState)
}

func NewCircuitBreakerManager(config CircuitBreakerConfig) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// OnStateChange registers a callback for circuit breaker state transitions.
// Used to emit metrics and logs when breakers open or close.
func (m *CircuitBreakerManager) OnStateChange(fn func(endpointID string, from, to CircuitBreakerState)) {
	m.onStateChange = fn
}

// GetBreaker returns the circuit breaker for an endpoint, creating one if needed.
func (m *CircuitBreakerManager) GetBreaker(endpointID string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[endpointID]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists = m.breakers[endpointID]; exists {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        endpointID,
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < m.config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= m.config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if m.onStateChange != nil {
				m.onStateChange(name, toState(from), toState(to))
			}
		},
	}

	cb = gobreaker.NewCircuitBreaker(settings)
	m.breakers[endpointID] = cb
	return cb
}

// Record feeds one delivery attempt outcome into the endpoint's breaker.
// gobreaker only moves its counters through Execute, so the outcome is
// replayed as a zero-work Execute call. An open breaker ignores the record,
// which is fine: nothing should have been attempted while open.
func (m *CircuitBreakerManager) Record(endpointID string, success bool) {
	_, _ = m.GetBreaker(endpointID).Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, errRecordedFailure
	})
}

// State returns the current state of the circuit breaker for an endpoint.
func (m *CircuitBreakerManager) State(endpointID string) CircuitBreakerState {
	return toState(m.GetBreaker(endpointID).State())
}

// Remove deletes the circuit breaker for an endpoint, freeing memory.
func (m *CircuitBreakerManager) Remove(endpointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, endpointID)
}

func toState(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateClosed:
		return CircuitBreakerStateClosed
	case gobreaker.StateOpen:
		return CircuitBreakerStateOpen
	case gobreaker.StateHalfOpen:
		return CircuitBreakerStateHalfOpen
	default:
		return CircuitBreakerStateClosed
	}
}
