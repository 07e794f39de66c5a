package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/colin330smith/callbot-ai/internal/delivery"
	"github.com/colin330smith/callbot-ai/internal/domain"
)

type mockSink struct {
	triggered []struct {
		businessID string
		eventType  domain.EventType
		payload    map[string]any
	}
}

func (m *mockSink) Trigger(ctx context.Context, businessID string, eventType domain.EventType, payload map[string]any) []delivery.Result {
	m.triggered = append(m.triggered, struct {
		businessID string
		eventType  domain.EventType
		payload    map[string]any
	}{businessID, eventType, payload})
	return nil
}

func newTestConsumer(sink EventSink) *Consumer {
	return &Consumer{
		config: DefaultConsumerConfig(),
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandleMessage_DispatchesValidEvent(t *testing.T) {
	sink := &mockSink{}
	c := newTestConsumer(sink)

	msg := kafka.Message{
		Key:   []byte("biz_1"),
		Value: []byte(`{"business_id":"biz_1","type":"call.ended","payload":{"duration":95}}`),
	}
	c.handleMessage(context.Background(), msg)

	if len(sink.triggered) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(sink.triggered))
	}
	got := sink.triggered[0]
	if got.businessID != "biz_1" || got.eventType != domain.EventCallEnded {
		t.Errorf("unexpected dispatch %+v", got)
	}
	if got.payload["duration"] != float64(95) {
		t.Errorf("payload lost: %v", got.payload)
	}
}

func TestHandleMessage_SkipsMalformed(t *testing.T) {
	sink := &mockSink{}
	c := newTestConsumer(sink)

	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"business_id":"biz_1","type":"call.ringing"}`),
		[]byte(`{"type":"call.ended"}`),
	}
	for _, value := range cases {
		c.handleMessage(context.Background(), kafka.Message{Value: value})
	}

	if len(sink.triggered) != 0 {
		t.Errorf("malformed messages must not dispatch, got %d", len(sink.triggered))
	}
}
