package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

const (
	MaxDeliveryAttempts = 5
	baseRetryDelay      = 30 * time.Second
	maxRetryDelay       = time.Hour
)

type OrderGetter interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type DeliveryStore interface {
	GetNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) (*repository.OutboxEvent, error)
	MarkNotificationDelivered(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) error
	RescheduleNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string, next time.Time) error
	AbandonNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) notify.Result
}

// NotificationHandler sends the customer email for an order event and
// records the outcome on the outbox row.
type NotificationHandler struct {
	orders      OrderGetter
	deliveries  DeliveryStore
	dispatcher  Dispatcher
	maxAttempts int
	now         func() time.Time
}

func NewNotificationHandler(orders OrderGetter, deliveries DeliveryStore, dispatcher Dispatcher) *NotificationHandler {
	return &NotificationHandler{
		orders:      orders,
		deliveries:  deliveries,
		dispatcher:  dispatcher,
		maxAttempts: MaxDeliveryAttempts,
		now:         time.Now,
	}
}

func (h *NotificationHandler) HandleEvent(ctx context.Context, ev domain.OrderEvent) error {
	switch ev.Kind {
	case domain.KindOrderConfirmation, domain.KindPaymentSucceeded, domain.KindPaymentFailed, domain.KindOrderShipped:
	default:
		return nil
	}

	attempts := 0
	rec, err := h.deliveries.GetNotification(ctx, ev.OrderID, ev.Kind)
	switch {
	case err == nil:
		if rec.DeliveredAt != nil || rec.AbandonedAt != nil {
			slog.DebugContext(ctx, "notification already settled", "order_id", ev.OrderID.String(), "kind", ev.Kind)
			return nil
		}
		attempts = rec.Attempts
	case errors.Is(err, repository.ErrNotificationNotFound):
	default:
		return fmt.Errorf("failed to load notification state: %w", err)
	}

	order, err := h.orders.GetOrderByID(ctx, ev.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		slog.ErrorContext(ctx, "notification for unknown order dropped", "order_id", ev.OrderID.String(), "kind", ev.Kind)
		return h.abandon(ctx, ev, "order not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	res := h.dispatcher.Dispatch(ctx, notificationFor(order, ev))
	if res.Success {
		if err := h.deliveries.MarkNotificationDelivered(ctx, ev.OrderID, ev.Kind); err != nil &&
			!errors.Is(err, repository.ErrNotificationNotFound) {
			slog.ErrorContext(ctx, "failed to mark notification delivered",
				"order_id", ev.OrderID.String(), "kind", ev.Kind, "message_id", res.MessageID, "error", err)
		}
		return nil
	}

	attempts++
	if attempts >= h.maxAttempts {
		slog.ErrorContext(ctx, "giving up on notification, resend from the admin email endpoint",
			"order_id", ev.OrderID.String(), "kind", ev.Kind, "recipient", order.CustomerEmail,
			"attempts", attempts, "error", res.Err)
		return h.abandon(ctx, ev, errString(res.Err))
	}

	next := h.now().Add(retryDelay(attempts))
	if err := h.deliveries.RescheduleNotification(ctx, ev.OrderID, ev.Kind, errString(res.Err), next); err != nil {
		return fmt.Errorf("failed to reschedule notification: %w", err)
	}
	slog.WarnContext(ctx, "notification rescheduled",
		"order_id", ev.OrderID.String(), "kind", ev.Kind, "attempts", attempts, "next_attempt_at", next)
	return nil
}

func (h *NotificationHandler) abandon(ctx context.Context, ev domain.OrderEvent, reason string) error {
	err := h.deliveries.AbandonNotification(ctx, ev.OrderID, ev.Kind, reason)
	if err != nil && !errors.Is(err, repository.ErrNotificationNotFound) {
		return fmt.Errorf("failed to abandon notification: %w", err)
	}
	return nil
}

func notificationFor(order *domain.Order, ev domain.OrderEvent) domain.Notification {
	switch ev.Kind {
	case domain.KindPaymentSucceeded:
		return domain.PaymentSucceeded{Order: order}
	case domain.KindPaymentFailed:
		reason := ev.Reason
		if reason == "" {
			reason = order.FailureReason
		}
		return domain.PaymentFailed{Order: order, Reason: reason}
	case domain.KindOrderShipped:
		tracking := order.Tracking
		if ev.Tracking != nil {
			tracking = *ev.Tracking
		}
		return domain.OrderShipped{Order: order, Tracking: tracking}
	}
	return domain.OrderConfirmation{Order: order}
}

// retryDelay doubles per attempt from baseRetryDelay, capped at maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	d := baseRetryDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
