package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colin330smith/callbot-ai/internal/actions"
	"github.com/colin330smith/callbot-ai/internal/clock"
	"github.com/colin330smith/callbot-ai/internal/delivery"
	"github.com/colin330smith/callbot-ai/internal/dispatch"
	"github.com/colin330smith/callbot-ai/internal/observability"
	"github.com/colin330smith/callbot-ai/internal/registry"
	"github.com/colin330smith/callbot-ai/internal/retry"
	"github.com/colin330smith/callbot-ai/internal/rules"
	"github.com/colin330smith/callbot-ai/internal/signature"
)

func newTestRouter(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	endpoints := registry.NewMemoryEndpointStore()
	ruleStore := registry.NewMemoryRuleStore()
	clk := &clock.MockClock{NowTime: time.Now()}
	executor := delivery.NewExecutor(http.DefaultClient, clk, retry.Schedule{}, endpoints, nil)
	engine := rules.NewEngine(actions.Registry{}, nil)
	dispatcher := dispatch.NewDispatcher(endpoints, ruleStore, executor, engine, nil)

	h := NewHandler(endpoints, ruleStore, dispatcher, nil)
	health := observability.NewHealthHandler()
	health.SetReady(true)
	router := NewRouter(RouterConfig{
		Handler:       h,
		HealthHandler: health,
	})
	return h, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateWebhook(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"call.ended", "sms.received"},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createWebhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" {
		t.Error("expected webhook id in response")
	}
	if len(resp.Secret) != 64 {
		t.Errorf("expected 64-char secret, got %d chars", len(resp.Secret))
	}
}

func TestCreateWebhook_Validation(t *testing.T) {
	_, router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{"events": []string{"call.ended"}}},
		{"missing events", map[string]any{"url": "https://x.com"}},
		{"unknown event", map[string]any{"url": "https://x.com", "events": []string{"call.ringing"}}},
		{"bad scheme", map[string]any{"url": "ftp://x.com", "events": []string{"call.ended"}}},
		{"reserved header", map[string]any{
			"url": "https://x.com", "events": []string{"call.ended"},
			"headers": map[string]string{"X-CallBotAI-Event": "spoof"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/webhooks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListWebhooks_SecretNeverReturned(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"call.ended"},
	})
	var created createWebhookResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, router, http.MethodGet, "/businesses/biz_1/webhooks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), created.Secret) {
		t.Error("listing must never expose the signing secret")
	}

	var resp struct {
		Webhooks []map[string]any `json:"webhooks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Webhooks) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(resp.Webhooks))
	}
	if resp.Webhooks[0]["id"] != created.ID {
		t.Errorf("unexpected webhook id %v", resp.Webhooks[0]["id"])
	}
}

func TestDeleteWebhook(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"call.ended"},
	})
	var created createWebhookResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, router, http.MethodDelete, "/businesses/biz_1/webhooks/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/businesses/biz_1/webhooks/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestRuleCRUD(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/rules", map[string]any{
		"name":          "long call to slack",
		"trigger_event": "call.ended",
		"conditions": []map[string]any{
			{"field": "duration", "operator": "greater_than", "value": 60},
		},
		"actions": []map[string]any{
			{"type": "notify_slack", "params": map[string]string{"webhook_url": "https://hooks.slack.com/x"}},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created map[string]any
	json.Unmarshal(rec.Body.Bytes(), &created)
	ruleID, _ := created["id"].(string)
	if ruleID == "" {
		t.Fatal("expected rule id in response")
	}

	rec = doJSON(t, router, http.MethodGet, "/businesses/biz_1/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listResp struct {
		Rules []map[string]any `json:"rules"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if len(listResp.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(listResp.Rules))
	}

	rec = doJSON(t, router, http.MethodDelete, "/businesses/biz_1/rules/"+ruleID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/businesses/biz_1/rules", map[string]any{
		"name":          "bad",
		"trigger_event": "nope",
		"actions":       []map[string]any{{"type": "notify_slack"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown trigger, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/businesses/biz_1/rules", map[string]any{
		"name":          "no actions",
		"trigger_event": "call.ended",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for rule without actions, got %d", rec.Code)
	}
}

func TestTriggerEvent(t *testing.T) {
	received := make(chan string, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-CallBotAI-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	_, router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/businesses/biz_1/webhooks", map[string]any{
		"url":    target.URL,
		"events": []string{"appointment.booked"},
	})

	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"business_id": "biz_1",
		"type":        "appointment.booked",
		"payload":     map[string]any{"customer_name": "Ada"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case event := <-received:
		if event != "appointment.booked" {
			t.Errorf("unexpected event header %q", event)
		}
	default:
		t.Fatal("subscribed endpoint never received the delivery")
	}

	var resp struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0]["success"] != true {
		t.Errorf("expected successful delivery, got %v", resp.Results[0])
	}
}

func TestTriggerEvent_UnknownType(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/events", map[string]any{
		"business_id": "biz_1",
		"type":        "call.ringing",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown event type, got %d", rec.Code)
	}
}

func TestProviderWebhook(t *testing.T) {
	h, router := newTestRouter(t)
	h.WithProviderSecret("voiceai", "whsec_provider")

	body := []byte(`{"business_id":"biz_1","type":"call.ended","payload":{"duration":95}}`)
	header := signature.SignTimestamped(body, "whsec_provider", time.Now())

	req := httptest.NewRequest(http.MethodPost, "/providers/voiceai", bytes.NewReader(body))
	req.Header.Set("X-CallBotAI-Signature", header)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProviderWebhook_Rejections(t *testing.T) {
	h, router := newTestRouter(t)
	h.WithProviderSecret("voiceai", "whsec_provider")

	body := []byte(`{"business_id":"biz_1","type":"call.ended"}`)

	t.Run("unknown provider", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/providers/ghost", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/providers/voiceai", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signature.SignTimestamped(body, "other-secret", time.Now())
		req := httptest.NewRequest(http.MethodPost, "/providers/voiceai", bytes.NewReader(body))
		req.Header.Set("X-CallBotAI-Signature", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := signature.SignTimestamped(body, "whsec_provider", time.Now().Add(-10*time.Minute))
		req := httptest.NewRequest(http.MethodPost, "/providers/voiceai", bytes.NewReader(body))
		req.Header.Set("X-CallBotAI-Signature", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	_, router := newTestRouter(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
