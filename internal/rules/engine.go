// Package rules evaluates declarative automation rules against event
// payloads and executes their configured provider actions.
//
// A rule fires when every condition passes (logical AND; an empty condition
// list always passes). A failing or erroring condition means "not met" -
// fail-safe, never fail-open. Actions run in order with per-action isolation:
// one action's failure never stops its siblings.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/colin330smith/callbot-ai/internal/actions"
	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/observability"
)

// ActionResult is one action's outcome within a fired rule.
type ActionResult struct {
	Action  domain.ActionType `json:"action"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
}

// Engine evaluates rules and runs their actions through the action registry.
type Engine struct {
	registry actions.Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewEngine(registry actions.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{registry: registry, logger: logger}
}

// WithMetrics enables Prometheus metrics collection.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// Evaluate reports whether all of the rule's conditions pass for the payload.
func (e *Engine) Evaluate(rule *domain.Rule, payload map[string]any) bool {
	if e.metrics != nil {
		e.metrics.RulesEvaluated.Inc()
	}
	for _, cond := range rule.Conditions {
		if !evalCondition(cond, payload) {
			return false
		}
	}
	return true
}

// ExecuteActions runs every action of the rule, collecting per-action
// outcomes. It never returns an error: action failures are data.
func (e *Engine) ExecuteActions(ctx context.Context, rule *domain.Rule, payload map[string]any) []ActionResult {
	results := make([]ActionResult, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		res := ActionResult{Action: action.Type}

		fn, ok := e.registry[action.Type]
		if !ok {
			res.Error = fmt.Sprintf("no handler for action type %q", action.Type)
		} else if err := fn(ctx, action.Params, payload); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}

		if !res.Success {
			e.logger.Warn("automation action failed",
				"rule_id", rule.ID,
				"rule", rule.Name,
				"action", action.Type,
				"error", res.Error,
			)
			if e.metrics != nil {
				e.metrics.ActionFailures.WithLabelValues(string(action.Type)).Inc()
			}
		}
		results = append(results, res)
	}
	return results
}

// Run evaluates the rule and, when it fires, executes its actions.
// The boolean reports whether the rule fired.
func (e *Engine) Run(ctx context.Context, rule *domain.Rule, payload map[string]any) (bool, []ActionResult) {
	if !e.Evaluate(rule, payload) {
		return false, nil
	}
	if e.metrics != nil {
		e.metrics.RulesFired.Inc()
	}
	e.logger.Info("automation rule fired",
		"rule_id", rule.ID,
		"rule", rule.Name,
		"business_id", rule.BusinessID,
	)
	return true, e.ExecuteActions(ctx, rule, payload)
}

// evalCondition applies one field/operator/value triple. Unknown operators
// always fail rather than silently pass.
func evalCondition(cond domain.Condition, payload map[string]any) bool {
	actual, present := payload[cond.Field]

	switch cond.Operator {
	case domain.OpEquals:
		return looseEqual(actual, cond.Value)
	case domain.OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case domain.OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(cond.Value))
	case domain.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		// A missing or falsy actual fails the condition, it is not an error.
		return aok && bok && a != 0 && a > b
	case domain.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(cond.Value)
		return aok && bok && a != 0 && a < b
	case domain.OpExists:
		return present && actual != nil
	default:
		return false
	}
}

// looseEqual compares across the numeric types JSON decoding produces, so a
// condition value of int 5 matches a payload float64 5.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
