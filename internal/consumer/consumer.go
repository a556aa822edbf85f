package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Handler acts on one order event. Handlers must tolerate redelivery.
type Handler interface {
	HandleEvent(ctx context.Context, ev domain.OrderEvent) error
}

type Consumer struct {
	name    string
	handler Handler
	reader  *kafka.Reader
}

func NewConsumer(handler Handler, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{name: groupID, handler: handler, reader: reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		slog.Error("error closing kafka reader", "consumer", c.name, "error", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.ErrorContext(ctx, "error reading message", "consumer", c.name, "error", err)
		return
	}

	var ev domain.OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		slog.ErrorContext(ctx, "error parsing message", "consumer", c.name, "offset", m.Offset, "error", err)
		return
	}

	if err := c.handler.HandleEvent(ctx, ev); err != nil {
		// the offset is already committed; the poller republishes the row
		// once it has been in flight for too long
		slog.ErrorContext(ctx, "failed to handle event",
			"consumer", c.name, "order_id", ev.OrderID.String(), "kind", ev.Kind, "error", err)
	}
}
