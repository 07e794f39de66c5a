// Producer publishes sample domain events to Kafka, for local testing of
// the consumer path.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/colin330smith/callbot-ai/internal/domain"
	"github.com/colin330smith/callbot-ai/internal/ingest"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	count := flag.Int("count", 10, "number of events to publish")
	businessID := flag.String("business", "biz_demo", "business id to publish for")
	eventType := flag.String("type", "call.ended", "event type")
	flag.Parse()

	if _, err := domain.ParseEventType(*eventType); err != nil {
		logger.Error("invalid event type", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := ingest.DefaultProducerConfig()
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Topic = topic
	}

	logger.Info("publishing events",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"count", *count,
		"business_id", *businessID,
		"type", *eventType,
	)

	producer := ingest.NewProducer(cfg, logger)
	defer func() { _ = producer.Close() }()

	start := time.Now()
	events := make([]ingest.EventMessage, 0, *count)
	for i := 0; i < *count; i++ {
		now := time.Now().UTC()
		events = append(events, ingest.EventMessage{
			BusinessID: *businessID,
			Type:       *eventType,
			Payload: map[string]any{
				"caller_phone":       "+15551234567",
				"duration":           60 + i,
				"appointment_booked": i%2 == 0,
				"summary":            "sample event from producer",
			},
			OccurredAt: &now,
		})
	}

	if err := producer.PublishBatch(ctx, events); err != nil {
		logger.Error("failed to publish events", "error", err)
		os.Exit(1)
	}

	logger.Info("done", "events", *count, "duration", time.Since(start))
}
