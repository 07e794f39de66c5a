package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/colin330smith/callbot-ai/internal/domain"
)

func testEndpoint(businessID string) *domain.Endpoint {
	return &domain.Endpoint{
		BusinessID: businessID,
		URL:        "https://example.com/hooks",
		Events:     []domain.EventType{domain.EventCallEnded},
		Active:     true,
	}
}

func TestMemoryEndpointStore_Register(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if ep.ID == "" {
		t.Error("expected generated ID")
	}
	if len(ep.Secret) != 64 {
		t.Errorf("expected 64-char hex secret, got %d chars", len(ep.Secret))
	}
	if ep.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	eps, err := store.List(ctx, "biz_1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(eps))
	}
}

func TestMemoryEndpointStore_RegisterInvalid(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	tests := []struct {
		name string
		ep   *domain.Endpoint
	}{
		{"bad scheme", &domain.Endpoint{BusinessID: "b", URL: "ftp://x.com", Events: []domain.EventType{domain.EventCallEnded}}},
		{"no host", &domain.Endpoint{BusinessID: "b", URL: "https://", Events: []domain.EventType{domain.EventCallEnded}}},
		{"no business", &domain.Endpoint{URL: "https://x.com", Events: []domain.EventType{domain.EventCallEnded}}},
		{"unknown event", &domain.Endpoint{BusinessID: "b", URL: "https://x.com", Events: []domain.EventType{"bogus.event"}}},
		{"reserved header", &domain.Endpoint{
			BusinessID: "b", URL: "https://x.com",
			Events:  []domain.EventType{domain.EventCallEnded},
			Headers: map[string]string{"X-CallBotAI-Signature": "spoof"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Register(ctx, tt.ep); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMemoryEndpointStore_SecretUnique(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	a := testEndpoint("biz_1")
	b := testEndpoint("biz_1")
	if err := store.Register(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.Register(ctx, b); err != nil {
		t.Fatal(err)
	}
	if a.Secret == b.Secret {
		t.Error("two registrations should get distinct secrets")
	}
	if a.ID == b.ID {
		t.Error("two registrations should get distinct IDs")
	}
}

func TestMemoryEndpointStore_Deregister(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatal(err)
	}

	found, err := store.Deregister(ctx, "biz_1", ep.ID)
	if err != nil || !found {
		t.Fatalf("expected deregister to find endpoint, got (%v, %v)", found, err)
	}

	found, err = store.Deregister(ctx, "biz_1", ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("second deregister should report not found")
	}

	eps, _ := store.List(ctx, "biz_1")
	if len(eps) != 0 {
		t.Errorf("expected no endpoints after deregister, got %d", len(eps))
	}
}

func TestMemoryEndpointStore_BusinessIsolation(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatal(err)
	}

	eps, _ := store.List(ctx, "biz_2")
	if len(eps) != 0 {
		t.Error("another business should not see the endpoint")
	}

	found, _ := store.Deregister(ctx, "biz_2", ep.ID)
	if found {
		t.Error("another business should not be able to deregister the endpoint")
	}
}

func TestMemoryEndpointStore_RecordOutcome(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := store.RecordOutcome(ctx, "biz_1", ep.ID, true, at); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordOutcome(ctx, "biz_1", ep.ID, false, at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "biz_1", ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SuccessCount != 1 || got.FailureCount != 1 {
		t.Errorf("expected counters (1, 1), got (%d, %d)", got.SuccessCount, got.FailureCount)
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(at.Add(time.Minute)) {
		t.Errorf("expected last_triggered %v, got %v", at.Add(time.Minute), got.LastTriggered)
	}

	if err := store.RecordOutcome(ctx, "biz_1", "wh_missing", true, at); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown endpoint, got %v", err)
	}
}

func TestMemoryEndpointStore_ConcurrentOutcomes(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			_ = store.RecordOutcome(ctx, "biz_1", ep.ID, success, time.Now())
		}(i%2 == 0)
	}
	wg.Wait()

	got, _ := store.Get(ctx, "biz_1", ep.ID)
	if got.SuccessCount+got.FailureCount != 50 {
		t.Errorf("expected 50 recorded outcomes, got %d", got.SuccessCount+got.FailureCount)
	}
	if got.SuccessCount != 25 {
		t.Errorf("expected 25 successes, got %d", got.SuccessCount)
	}
}

func TestMemoryEndpointStore_ListReturnsCopies(t *testing.T) {
	store := NewMemoryEndpointStore()
	ctx := context.Background()

	ep := testEndpoint("biz_1")
	if err := store.Register(ctx, ep); err != nil {
		t.Fatal(err)
	}

	eps, _ := store.List(ctx, "biz_1")
	eps[0].SuccessCount = 999
	eps[0].Events[0] = domain.EventCallStarted

	got, _ := store.Get(ctx, "biz_1", ep.ID)
	if got.SuccessCount != 0 {
		t.Error("mutating a listed endpoint should not affect the store")
	}
	if got.Events[0] != domain.EventCallEnded {
		t.Error("mutating a listed endpoint's events should not affect the store")
	}
}

func TestMemoryRuleStore_CreateListDelete(t *testing.T) {
	store := NewMemoryRuleStore()
	ctx := context.Background()

	rule := domain.MissedCallToGHL("biz_1", map[string]string{"api_key": "k", "location_id": "loc"})
	if err := store.Create(ctx, rule); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rule.ID == "" {
		t.Error("expected generated rule ID")
	}

	rulesOut, err := store.List(ctx, "biz_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rulesOut) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rulesOut))
	}

	found, err := store.Delete(ctx, "biz_1", rule.ID)
	if err != nil || !found {
		t.Fatalf("expected delete to find rule, got (%v, %v)", found, err)
	}
	found, _ = store.Delete(ctx, "biz_1", rule.ID)
	if found {
		t.Error("second delete should report not found")
	}
}

func TestMemoryRuleStore_CreateInvalid(t *testing.T) {
	store := NewMemoryRuleStore()
	ctx := context.Background()

	rule := &domain.Rule{BusinessID: "biz_1", Name: "bad", TriggerEvent: "nope"}
	if err := store.Create(ctx, rule); err == nil {
		t.Error("expected validation error for unknown trigger event")
	}
}
