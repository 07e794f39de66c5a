package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colin330smith/callbot-ai/internal/dispatch"
	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/registry"
	"github.com/colin330smith/callbot-ai/internal/signature"
)

// Handler serves webhook/rule configuration and the event entry point.
type Handler struct {
	endpoints  registry.EndpointStore
	rules      registry.RuleStore
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// providerSecrets maps an upstream provider name (voice AI, payments)
	// to the shared secret used to verify its inbound webhooks.
	providerSecrets map[string]string
}

func NewHandler(
	endpoints registry.EndpointStore,
	rules registry.RuleStore,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		endpoints:       endpoints,
		rules:           rules,
		dispatcher:      dispatcher,
		logger:          logger,
		providerSecrets: make(map[string]string),
	}
}

// WithProviderSecret registers the verification secret for an upstream
// provider's inbound webhooks.
func (h *Handler) WithProviderSecret(provider, secret string) *Handler {
	h.providerSecrets[provider] = secret
	return h
}

type createWebhookRequest struct {
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers,omitempty"`
}

type createWebhookResponse struct {
	ID string `json:"id"`
	// The signing secret is shown exactly once, here. It is never
	// retrievable again.
	Secret string `json:"secret"`
}

func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || len(req.Events) == 0 {
		h.respondError(w, http.StatusBadRequest, "url and events are required")
		return
	}

	events := make([]domain.EventType, 0, len(req.Events))
	for _, e := range req.Events {
		t, err := domain.ParseEventType(e)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		events = append(events, t)
	}

	ep := &domain.Endpoint{
		BusinessID: businessID,
		URL:        req.URL,
		Events:     events,
		Headers:    req.Headers,
		Active:     true,
	}

	if err := h.endpoints.Register(r.Context(), ep); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnknownEventType) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to register endpoint", "error", err, "business_id", businessID)
		h.respondError(w, http.StatusInternalServerError, "failed to register endpoint")
		return
	}

	h.respondJSON(w, http.StatusCreated, createWebhookResponse{
		ID:     ep.ID,
		Secret: ep.Secret,
	})
}

func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	eps, err := h.endpoints.List(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to list endpoints", "error", err, "business_id", businessID)
		h.respondError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	// Endpoint marshals its secret as "-"; the creation response is the
	// only place it ever appears.
	h.respondJSON(w, http.StatusOK, map[string]any{"webhooks": eps})
}

func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	endpointID := chi.URLParam(r, "endpointID")

	found, err := h.endpoints.Deregister(r.Context(), businessID, endpointID)
	if err != nil {
		h.logger.Error("failed to deregister endpoint", "error", err, "endpoint_id", endpointID)
		h.respondError(w, http.StatusInternalServerError, "failed to deregister endpoint")
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRuleRequest struct {
	Name         string             `json:"name"`
	TriggerEvent string             `json:"trigger_event"`
	Conditions   []domain.Condition `json:"conditions,omitempty"`
	Actions      []domain.Action    `json:"actions,omitempty"`
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	trigger, err := domain.ParseEventType(req.TriggerEvent)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := &domain.Rule{
		BusinessID:   businessID,
		Name:         req.Name,
		TriggerEvent: trigger,
		Conditions:   req.Conditions,
		Actions:      req.Actions,
		Active:       true,
	}

	if err := h.rules.Create(r.Context(), rule); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnknownEventType) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create rule", "error", err, "business_id", businessID)
		h.respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	h.respondJSON(w, http.StatusCreated, rule)
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	ruleList, err := h.rules.List(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to list rules", "error", err, "business_id", businessID)
		h.respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"rules": ruleList})
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	ruleID := chi.URLParam(r, "ruleID")

	found, err := h.rules.Delete(r.Context(), businessID, ruleID)
	if err != nil {
		h.logger.Error("failed to delete rule", "error", err, "rule_id", ruleID)
		h.respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type triggerEventRequest struct {
	BusinessID string         `json:"business_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
}

// TriggerEvent is the collaborator entry point: call handlers, booking,
// SMS, and campaign code raise their domain events here.
func (h *Handler) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req triggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusinessID == "" {
		h.respondError(w, http.StatusBadRequest, "business_id is required")
		return
	}

	eventType, err := domain.ParseEventType(req.Type)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := h.dispatcher.Trigger(r.Context(), req.BusinessID, eventType, req.Payload)
	h.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ProviderWebhook receives inbound webhooks from upstream providers and
// verifies the timestamped composite signature before accepting. A verified
// payload carrying a known event type is re-dispatched as a domain event.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	secret, ok := h.providerSecrets[provider]
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sig := r.Header.Get(domain.HeaderSignature)
	if !signature.VerifyTimestamped(body, sig, secret, signature.DefaultTolerance, time.Now()) {
		h.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req triggerEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	eventType, err := domain.ParseEventType(req.Type)
	if err != nil || req.BusinessID == "" {
		h.respondError(w, http.StatusBadRequest, "business_id and a known type are required")
		return
	}

	results := h.dispatcher.Trigger(r.Context(), req.BusinessID, eventType, req.Payload)
	h.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
