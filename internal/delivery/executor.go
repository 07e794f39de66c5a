// Package delivery implements signed webhook delivery with a fixed retry
// schedule.
//
// One Deliver call is one delivery: up to three HTTP attempts against a
// single endpoint, strictly sequential, with cooperative backoff waits
// between them. The terminal outcome is reported as data, never as an error;
// a misbehaving subscriber must not crash or block the business event that
// triggered it.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/colin330smith/callbot-ai/internal/clock"
	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/observability"
	"github.com/colin330smith/callbot-ai/internal/resilience"
	"github.com/colin330smith/callbot-ai/internal/retry"
	"github.com/colin330smith/callbot-ai/internal/signature"
)

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OutcomeRecorder receives the terminal outcome of each delivery. The
// registry implements it; counters move exactly once per Deliver call.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, businessID, endpointID string, success bool, at time.Time) error
}

// Result is the per-endpoint outcome returned to the triggering collaborator.
type Result struct {
	EndpointID  string `json:"endpoint_id"`
	EndpointURL string `json:"endpoint_url"`
	Success     bool   `json:"success"`
	StatusCode  int    `json:"status_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Attempts    int    `json:"attempts"`
}

// AttemptTimeout bounds each individual HTTP POST.
const AttemptTimeout = 30 * time.Second

// Executor signs and POSTs event envelopes to subscriber endpoints.
type Executor struct {
	httpClient HTTPClient
	clock      clock.Clock
	schedule   retry.Schedule
	recorder   OutcomeRecorder
	logger     *slog.Logger
	metrics    *observability.Metrics

	rateLimiter    resilience.RateLimiter
	circuitBreaker resilience.CircuitBreaker
}

// NewExecutor creates a delivery executor. Use WithMetrics and WithResilience
// to add optional features.
func NewExecutor(
	httpClient HTTPClient,
	clk clock.Clock,
	schedule retry.Schedule,
	recorder OutcomeRecorder,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		httpClient: httpClient,
		clock:      clk,
		schedule:   schedule,
		recorder:   recorder,
		logger:     logger,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (e *Executor) WithMetrics(m *observability.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithResilience gates deliveries behind a per-endpoint rate limiter and
// circuit breaker before any HTTP attempt is made.
func (e *Executor) WithResilience(rl resilience.RateLimiter, cb resilience.CircuitBreaker) *Executor {
	e.rateLimiter = rl
	e.circuitBreaker = cb
	return e
}

// Deliver sends one event to one endpoint, retrying per the schedule.
//
// The envelope is serialized exactly once and the signature covers those
// exact bytes. Attempts run on a context detached from the caller's
// cancellation: aborting an attempt mid-flight risks the subscriber receiving
// a duplicate on the next retry without the sender recording success. The
// outcome is recorded on the same detached context, so a caller deadline
// expiring mid-delivery cannot drop the counter update either.
func (e *Executor) Deliver(ctx context.Context, ep *domain.Endpoint, eventType domain.EventType, payload map[string]any) Result {
	result := Result{EndpointID: ep.ID, EndpointURL: ep.URL}

	if gated, reason := e.gate(ctx, ep); gated {
		result.Error = reason
		e.logger.Debug("delivery gated", "endpoint_id", ep.ID, "reason", reason)
		if e.metrics != nil {
			e.metrics.DeliveriesThrottled.Inc()
		}
		// No HTTP attempt was made, so the endpoint's counters stay put.
		return result
	}

	base := context.WithoutCancel(ctx)

	body, err := e.buildEnvelope(ep, eventType, payload)
	if err != nil {
		result.Error = fmt.Sprintf("build envelope: %s", err)
		e.record(base, ep, &result)
		return result
	}
	sig := signature.Sign(body, ep.Secret)

	for attempt := 1; attempt <= e.schedule.MaxAttempts(); attempt++ {
		if attempt > 1 {
			delay, _ := e.schedule.DelayBefore(attempt)
			<-e.clock.After(delay)
		}
		result.Attempts = attempt

		status, attemptErr := e.attempt(base, ep, eventType, body, sig)
		result.StatusCode = status

		// Transport errors and 5xx count against the breaker; a 4xx means
		// the destination is up, just unhappy with us.
		if e.circuitBreaker != nil {
			if status == 0 || status >= 500 {
				e.circuitBreaker.RecordFailure(ctx, ep.ID)
			} else {
				e.circuitBreaker.RecordSuccess(ctx, ep.ID)
			}
		}

		if attemptErr == nil {
			result.Success = true
			result.Error = ""
			e.logger.Debug("delivery successful",
				"endpoint_id", ep.ID,
				"event", eventType,
				"status_code", status,
				"attempts", attempt,
			)
			e.record(base, ep, &result)
			return result
		}

		result.Error = attemptErr.Error()
		e.logger.Debug("delivery attempt failed",
			"endpoint_id", ep.ID,
			"event", eventType,
			"attempt", attempt,
			"error", attemptErr,
		)
	}

	e.logger.Warn("delivery failed permanently",
		"endpoint_id", ep.ID,
		"event", eventType,
		"attempts", result.Attempts,
		"error", result.Error,
	)
	e.record(base, ep, &result)
	return result
}

// gate consults the optional rate limiter and circuit breaker.
func (e *Executor) gate(ctx context.Context, ep *domain.Endpoint) (bool, string) {
	if e.rateLimiter != nil {
		allowed, err := e.rateLimiter.Allow(ctx, ep.ID)
		if err != nil {
			e.logger.Warn("rate limiter error", "error", err, "endpoint_id", ep.ID)
		}
		if !allowed {
			if e.metrics != nil {
				e.metrics.RateLimiterRejections.WithLabelValues(ep.ID).Inc()
			}
			return true, "rate limited"
		}
	}
	if e.circuitBreaker != nil {
		allowed, err := e.circuitBreaker.Allow(ctx, ep.ID)
		if err != nil {
			e.logger.Warn("circuit breaker error", "error", err, "endpoint_id", ep.ID)
		}
		if !allowed {
			return true, "circuit breaker open"
		}
	}
	return false, ""
}

func (e *Executor) buildEnvelope(ep *domain.Endpoint, eventType domain.EventType, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.Envelope{
		Event:      eventType.String(),
		Timestamp:  e.clock.Now().UTC().Format(time.RFC3339),
		BusinessID: ep.BusinessID,
		Data:       data,
	})
}

// attempt performs one HTTP POST. A nil error means a success status
// (200, 201, 202, 204) was received; everything else is a retryable failure.
func (e *Executor) attempt(base context.Context, ep *domain.Endpoint, eventType domain.EventType, body []byte, sig string) (int, error) {
	ctx, cancel := context.WithTimeout(base, AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	// Endpoint headers first so they can never shadow the reserved set.
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(domain.HeaderSignature, sig)
	req.Header.Set(domain.HeaderEvent, eventType.String())
	req.Header.Set(domain.HeaderTimestamp, e.clock.Now().UTC().Format(time.RFC3339))

	start := e.clock.Now()
	resp, err := e.httpClient.Do(req)
	duration := e.clock.Now().Sub(start)
	if e.metrics != nil {
		e.metrics.DeliveryAttempts.Inc()
		e.metrics.DeliveryDuration.Observe(duration.Seconds())
	}
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return resp.StatusCode, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
}

// record feeds the terminal outcome back into the endpoint's counters.
func (e *Executor) record(ctx context.Context, ep *domain.Endpoint, result *Result) {
	if e.metrics != nil {
		if result.Success {
			e.metrics.DeliveriesSucceeded.Inc()
		} else {
			e.metrics.DeliveriesFailed.Inc()
		}
	}
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordOutcome(ctx, ep.BusinessID, ep.ID, result.Success, e.clock.Now().UTC()); err != nil {
		e.logger.Error("failed to record delivery outcome",
			"error", err,
			"endpoint_id", ep.ID,
		)
	}
}
