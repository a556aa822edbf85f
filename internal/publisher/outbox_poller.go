package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/consumer"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

type OutboxRepository interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id uuid.UUID, attempts int) error
	RequeueStalledEvents(ctx context.Context, publishedBefore time.Time, maxAttempts int) (int64, error)
	GetMissingNotifications(ctx context.Context, settledBefore time.Time, limit int) ([]*repository.MissingNotification, error)
	EnqueueNotification(ctx context.Context, ev domain.OrderEvent) error
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	// settleGrace keeps recovery away from orders whose enqueue may still be
	// in flight.
	settleGrace time.Duration
	// stallAfter is how long a published row may wait for its handler to
	// settle it before it is published again.
	stallAfter time.Duration
	batch      int
	repo        OutboxRepository
	sink        Sink
}

func NewOutboxPoller(repo OutboxRepository, sink Sink) *OutboxPoller {
	return &OutboxPoller{
		timeout:      time.Second * 5,
		eventTick:    time.Second,
		recoveryTick: time.Second * 30,
		settleGrace:  time.Second * 30,
		stallAfter:   time.Minute * 10,
		batch:        100,
		repo:         repo,
		sink:         sink,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.requeueStalledEvents(ctx)
			p.recoverMissingNotifications(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnpublishedEvents(ctx, p.batch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		errPublish := p.sink.Publish(pubCtx, event)
		cancel()
		if errPublish != nil {
			slog.ErrorContext(ctx, "failed to publish outbox event",
				"event_id", event.ID.String(), "order_id", event.OrderID.String(), "kind", event.Kind, "error", errPublish)
			continue
		}

		// a handler that ran synchronously may already have rescheduled the
		// row, the attempt count keeps this mark from hiding it
		if errMark := p.repo.MarkEventPublished(ctx, event.ID, event.Attempts); errMark != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event as published",
				"event_id", event.ID.String(), "error", errMark)
		}
	}
}

func (p *OutboxPoller) requeueStalledEvents(ctx context.Context) {
	n, err := p.repo.RequeueStalledEvents(ctx, time.Now().Add(-p.stallAfter), consumer.MaxDeliveryAttempts)
	if err != nil {
		slog.ErrorContext(ctx, "failed to requeue stalled outbox events", "error", err)
		return
	}
	if n > 0 {
		slog.WarnContext(ctx, "requeued stalled outbox events", "count", n)
	}
}

// recoverMissingNotifications re-enqueues notifications for orders whose
// status implies one but which have no outbox row, e.g. after a crash
// between order creation and the confirmation enqueue.
func (p *OutboxPoller) recoverMissingNotifications(ctx context.Context) {
	missing, err := p.repo.GetMissingNotifications(ctx, time.Now().Add(-p.settleGrace), p.batch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get missing notifications", "error", err)
		return
	}

	for _, m := range missing {
		occurred := m.SettledAt.UTC()
		if m.SettledAt.IsZero() {
			occurred = time.Now().UTC()
		}
		ev := domain.OrderEvent{
			Kind:       m.Kind,
			OrderID:    m.OrderID,
			UserID:     m.UserID,
			Reason:     m.FailureReason,
			OccurredAt: occurred,
		}
		err := p.repo.EnqueueNotification(ctx, ev)
		if err != nil && !errors.Is(err, repository.ErrDuplicateNotification) {
			slog.ErrorContext(ctx, "failed to recover notification",
				"order_id", m.OrderID.String(), "kind", m.Kind, "error", err)
			continue
		}
		slog.InfoContext(ctx, "notification recovered", "order_id", m.OrderID.String(), "kind", m.Kind)
	}
}
