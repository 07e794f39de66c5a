package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/colin330smith/callbot-ai/internal/domain"
)

func TestForwardWebhook(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := ForwardWebhook(context.Background(), http.DefaultClient, server.URL, map[string]any{
		"caller_phone": "+15551234567",
	})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if gotBody["caller_phone"] != "+15551234567" {
		t.Errorf("payload not forwarded, got %v", gotBody)
	}
}

func TestForwardWebhook_NoURL(t *testing.T) {
	if err := ForwardWebhook(context.Background(), http.DefaultClient, "", nil); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestForwardWebhook_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad hook", http.StatusGone)
	}))
	defer server.Close()

	err := ForwardWebhook(context.Background(), http.DefaultClient, server.URL, nil)
	if err == nil {
		t.Fatal("expected error for 410 response")
	}
}

func TestGoHighLevel_CreateContact(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewGoHighLevelClient(http.DefaultClient, "key123", "loc456").WithBaseURL(server.URL)
	err := c.CreateContact(context.Background(), map[string]any{
		"first_name": "Ada",
		"phone":      "+1555",
	}, nil)
	if err != nil {
		t.Fatalf("create contact failed: %v", err)
	}

	if gotPath != "/contacts/" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer key123" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["locationId"] != "loc456" || gotBody["firstName"] != "Ada" {
		t.Errorf("unexpected body %v", gotBody)
	}
	if gotBody["source"] != "CallBotAI" {
		t.Errorf("expected source CallBotAI, got %v", gotBody["source"])
	}
	tags, _ := gotBody["tags"].([]any)
	if len(tags) != 1 || tags[0] != "AI Phone Lead" {
		t.Errorf("expected default tag, got %v", gotBody["tags"])
	}
}

func TestGoHighLevel_MissingCredentials(t *testing.T) {
	c := NewGoHighLevelClient(http.DefaultClient, "", "")
	if err := c.CreateContact(context.Background(), nil, nil); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestHubSpot_CreateContact(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewHubSpotClient(http.DefaultClient, "tok").WithBaseURL(server.URL)
	err := c.CreateContact(context.Background(), map[string]any{"email": "a@b.c"})
	if err != nil {
		t.Fatalf("create contact failed: %v", err)
	}

	if gotPath != "/crm/v3/objects/contacts" {
		t.Errorf("unexpected path %q", gotPath)
	}
	props, _ := gotBody["properties"].(map[string]any)
	if props["email"] != "a@b.c" || props["hs_lead_status"] != "NEW" {
		t.Errorf("unexpected properties %v", props)
	}
}

func TestSlack_SendMessage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewSlackClient(http.DefaultClient, server.URL)
	blocks := CallNotificationBlocks(map[string]any{
		"caller_phone":       "+1555",
		"duration":           float64(95),
		"appointment_booked": true,
		"summary":            "asked about pricing",
	})
	if err := c.SendMessage(context.Background(), "New call", blocks); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotBody["text"] != "New call" {
		t.Errorf("unexpected text %v", gotBody["text"])
	}
	sent, _ := gotBody["blocks"].([]any)
	if len(sent) != 3 {
		t.Errorf("expected 3 blocks, got %d", len(sent))
	}
}

func TestCallNotificationBlocks_Defaults(t *testing.T) {
	blocks := CallNotificationBlocks(map[string]any{})
	raw, _ := json.Marshal(blocks)
	s := string(raw)
	for _, want := range []string{"Unknown", "Not booked", "No summary available"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in blocks for empty payload", want)
		}
	}
}

func TestCallNotificationBlocks_TruncatesSummaryOnRuneBoundary(t *testing.T) {
	// 3-byte runes so the 500-byte cap lands mid-rune.
	summary := strings.Repeat("电", 200)
	blocks := CallNotificationBlocks(map[string]any{"summary": summary})

	text, _ := blocks[2]["text"].(map[string]any)
	got, _ := text["text"].(string)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated summary is not valid UTF-8: %q", got)
	}
	if strings.Contains(got, summary[:501]) {
		t.Errorf("summary was not truncated to 500 bytes")
	}
	// 500/3 rounds down to 166 whole runes.
	if want := strings.Repeat("电", 166); !strings.Contains(got, want) || strings.Contains(got, want+"电") {
		t.Errorf("expected exactly 166 runes kept")
	}
}

func TestDefaultRegistry_CoversAllActionTypes(t *testing.T) {
	reg := DefaultRegistry(http.DefaultClient)

	for _, at := range []domain.ActionType{
		domain.ActionForwardWebhook,
		domain.ActionSendToZapier,
		domain.ActionSendToMake,
		domain.ActionCreateGHLContact,
		domain.ActionCreateHubSpot,
		domain.ActionNotifySlack,
	} {
		if _, ok := reg[at]; !ok {
			t.Errorf("registry missing handler for %q", at)
		}
	}
}

func TestDefaultRegistry_GHLAction(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := DefaultRegistry(http.DefaultClient)
	err := reg[domain.ActionCreateGHLContact](context.Background(), map[string]string{
		"api_key":     "k",
		"location_id": "loc",
		"base_url":    server.URL,
		"tags":        "VIP,Callback",
	}, map[string]any{"phone": "+1555"})
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}
	if gotAuth != "Bearer k" {
		t.Errorf("unexpected auth %q", gotAuth)
	}
}
