package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
)

var notificationFor = map[domain.OrderStatus]domain.NotificationKind{
	domain.OrderStatusPaid:    domain.KindPaymentSucceeded,
	domain.OrderStatusFailed:  domain.KindPaymentFailed,
	domain.OrderStatusShipped: domain.KindOrderShipped,
}

type transitionOutcome struct {
	From    domain.OrderStatus
	To      domain.OrderStatus
	Changed bool
}

// applyEvent runs the state machine for order and persists the result with a
// compare-and-set on the status it read. The matching notification is queued
// in the same transaction, so it is only produced by the caller that actually
// moved the order.
func applyEvent(ctx context.Context, orders repository.OrderRepository, order *domain.Order,
	kind domain.EventKind, reason string, tracking *domain.TrackingInfo) (transitionOutcome, error) {

	out := transitionOutcome{From: order.Status, To: order.Status}
	next, ok := domain.Transition(order.Status, kind)
	if !ok {
		slog.InfoContext(ctx, "event does not apply to order, ignoring",
			"order_id", order.ID.String(), "status", order.Status, "event", kind)
		return out, nil
	}

	ev := &domain.OrderEvent{
		Kind:       notificationFor[next],
		OrderID:    order.ID,
		UserID:     order.UserID,
		Reason:     reason,
		Tracking:   tracking,
		OccurredAt: time.Now().UTC(),
	}
	changed, err := orders.ApplyStatusChange(ctx, repository.StatusChange{
		OrderID:       order.ID,
		From:          order.Status,
		To:            next,
		FailureReason: reason,
		Tracking:      tracking,
		Event:         ev,
	})
	if err != nil {
		return out, fmt.Errorf("failed to apply %s to order %s: %w", kind, order.ID, err)
	}
	if !changed {
		slog.InfoContext(ctx, "order status changed concurrently, ignoring",
			"order_id", order.ID.String(), "expected", order.Status, "event", kind)
		return out, nil
	}

	slog.InfoContext(ctx, "order status changed",
		"order_id", order.ID.String(), "from", order.Status, "to", next)
	out.To = next
	out.Changed = true
	return out, nil
}
