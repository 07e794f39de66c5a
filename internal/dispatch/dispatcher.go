// Package dispatch fans a single business event out to every subscribed
// endpoint and automation rule.
//
// Trigger is the sole entry point collaborators use: call handlers,
// appointment booking, SMS opt-out, and campaign runners all raise their
// events through it. Deliveries to independent endpoints run concurrently
// with a bounded limit; a slow or unreachable subscriber never delays
// delivery to the others, and a partial failure is reported in the results,
// never escalated.
package dispatch

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/colin330smith/callbot-ai/internal/delivery"
	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/observability"
	"github.com/colin330smith/callbot-ai/internal/registry"
	"github.com/colin330smith/callbot-ai/internal/rules"
)

// DefaultMaxConcurrent bounds parallel deliveries per Trigger call so a
// business with hundreds of endpoints cannot flood the outbound path.
const DefaultMaxConcurrent = 16

// Dispatcher resolves subscribers and hands each one to the executor.
type Dispatcher struct {
	endpoints     registry.EndpointStore
	ruleStore     registry.RuleStore
	executor      *delivery.Executor
	engine        *rules.Engine
	logger        *slog.Logger
	metrics       *observability.Metrics
	maxConcurrent int
}

// NewDispatcher creates a dispatcher. The rule store and engine may be nil
// when automations are not configured.
func NewDispatcher(
	endpoints registry.EndpointStore,
	ruleStore registry.RuleStore,
	executor *delivery.Executor,
	engine *rules.Engine,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		endpoints:     endpoints,
		ruleStore:     ruleStore,
		executor:      executor,
		engine:        engine,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (d *Dispatcher) WithMetrics(m *observability.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithMaxConcurrent overrides the per-trigger delivery concurrency bound.
func (d *Dispatcher) WithMaxConcurrent(n int) *Dispatcher {
	if n > 0 {
		d.maxConcurrent = n
	}
	return d
}

// Trigger fans the event out to every active endpoint subscribed to its
// type, in parallel, and returns one result per matching endpoint. Zero
// matches returns an empty slice. The event type must come from the closed
// set; producers validate with domain.ParseEventType before calling.
func (d *Dispatcher) Trigger(ctx context.Context, businessID string, eventType domain.EventType, payload map[string]any) []delivery.Result {
	if !eventType.Valid() {
		// Producer bug: fail loudly instead of silently dropping the event.
		panic("dispatch: " + domain.ErrUnknownEventType.Error() + ": " + eventType.String())
	}
	if d.metrics != nil {
		d.metrics.EventsReceived.Inc()
	}

	eps, err := d.endpoints.List(ctx, businessID)
	if err != nil {
		d.logger.Error("failed to list endpoints",
			"error", err,
			"business_id", businessID,
		)
		return []delivery.Result{}
	}

	var matched []*domain.Endpoint
	for _, ep := range eps {
		if ep.Active && ep.SubscribedTo(eventType) {
			matched = append(matched, ep)
		}
	}

	results := make([]delivery.Result, len(matched))
	var g errgroup.Group
	g.SetLimit(d.maxConcurrent)
	for i, ep := range matched {
		i, ep := i, ep
		g.Go(func() error {
			results[i] = d.executor.Deliver(ctx, ep, eventType, payload)
			return nil
		})
	}
	g.Wait()

	d.runRules(ctx, businessID, eventType, payload)

	d.logger.Debug("event dispatched",
		"business_id", businessID,
		"event", eventType,
		"endpoints", len(matched),
	)
	return results
}

// runRules evaluates the business's active automation rules for the event.
// Rules are a parallel subscriber path: their outcomes surface through logs
// and metrics, not through the delivery results.
func (d *Dispatcher) runRules(ctx context.Context, businessID string, eventType domain.EventType, payload map[string]any) {
	if d.ruleStore == nil || d.engine == nil {
		return
	}

	ruleList, err := d.ruleStore.List(ctx, businessID)
	if err != nil {
		d.logger.Error("failed to list automation rules",
			"error", err,
			"business_id", businessID,
		)
		return
	}

	for _, rule := range ruleList {
		if !rule.Active || rule.TriggerEvent != eventType {
			continue
		}
		d.engine.Run(ctx, rule, payload)
	}
}
