// Package ingest consumes domain events from Kafka and hands them to the
// dispatcher. Offsets are committed only after an event has been fully
// dispatched, so a crash mid-dispatch redelivers the event; deliveries are
// at-least-once and receivers must dedupe on their side if that matters.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/colin330smith/callbot-ai/internal/delivery"
	"github.com/colin330smith/callbot-ai/internal/domain"
)

// ConsumerConfig defines Kafka consumer parameters.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	CommitTimeout time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topic:         "callbot.events",
		GroupID:       "callbot-webhooks",
		CommitTimeout: 5 * time.Second,
	}
}

// EventMessage is the wire form collaborator services publish when a call
// ends, a booking lands, an SMS arrives, and so on.
type EventMessage struct {
	BusinessID string         `json:"business_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
}

// EventSink receives parsed domain events. The dispatcher satisfies it.
type EventSink interface {
	Trigger(ctx context.Context, businessID string, eventType domain.EventType, payload map[string]any) []delivery.Result
}

// Consumer reads domain events from Kafka and dispatches them.
type Consumer struct {
	config ConsumerConfig
	reader *kafka.Reader
	sink   EventSink
	logger *slog.Logger

	wg       sync.WaitGroup
	shutdown chan struct{}
}

func NewConsumer(config ConsumerConfig, sink EventSink, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits only
		StartOffset:    kafka.LastOffset,
		GroupBalancers: []kafka.GroupBalancer{
			kafka.RangeGroupBalancer{},
			kafka.RoundRobinGroupBalancer{},
		},
	})

	return &Consumer{
		config:   config,
		reader:   reader,
		sink:     sink,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start begins consuming messages.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("kafka consumer started",
		"topic", c.config.Topic,
		"group", c.config.GroupID,
	)
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop() {
	close(c.shutdown)
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		c.logger.Error("failed to close kafka reader", "error", err)
	}
	c.logger.Info("kafka consumer stopped")
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, err := c.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("failed to fetch message", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		c.handleMessage(ctx, msg)

		// Commit after dispatch completes. Crash before this point means
		// redelivery, not loss.
		if err := c.commit(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var event EventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("failed to unmarshal event",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return
	}

	eventType, err := domain.ParseEventType(event.Type)
	if err != nil {
		c.logger.Error("skipping event with unknown type",
			"type", event.Type,
			"business_id", event.BusinessID,
		)
		return
	}
	if event.BusinessID == "" {
		c.logger.Error("skipping event without business_id", "type", event.Type)
		return
	}

	c.sink.Trigger(ctx, event.BusinessID, eventType, event.Payload)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	commitCtx, cancel := context.WithTimeout(ctx, c.config.CommitTimeout)
	defer cancel()
	return c.reader.CommitMessages(commitCtx, msg)
}

// Stats returns consumer statistics.
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}
