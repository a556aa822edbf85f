package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/internal/consumer"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const TopicOrderEvents = "order-events"

// Sink delivers outbox rows to whoever acts on them.
type Sink interface {
	Publish(ctx context.Context, ev *repository.OutboxEvent) error
	Close() error
}

type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(topic string, brokers ...string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Publish(ctx context.Context, ev *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(ev.OrderID.String()), // order_id for ordering
		Value: ev.Payload,                  // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Kind)},
		},
	}
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LocalSink hands events straight to in-process handlers. Used when no
// broker is configured.
type LocalSink struct {
	handlers []consumer.Handler
}

func NewLocalSink(handlers ...consumer.Handler) *LocalSink {
	return &LocalSink{handlers: handlers}
}

func (s *LocalSink) Publish(ctx context.Context, ev *repository.OutboxEvent) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(ev.Payload, &event); err != nil {
		// a row that cannot be decoded will never succeed; drop it
		slog.ErrorContext(ctx, "undecodable outbox payload", "event_id", ev.ID.String(), "error", err)
		return nil
	}

	var errs []error
	for _, h := range s.handlers {
		if err := h.HandleEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

func (s *LocalSink) Close() error { return nil }
