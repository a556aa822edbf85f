package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type WebhookResult struct {
	EventID string
	Type    payment.EventType
	OrderID uuid.UUID
	From    domain.OrderStatus
	To      domain.OrderStatus
	Changed bool
	// Ignored is set for event types that do not drive an order.
	Ignored bool
	// ChargedAfterFailure is set when the processor reports a capture for an
	// order that already failed. The order stays failed; the charge needs a
	// refund or manual fulfilment.
	ChargedAfterFailure bool
}

// Reconciler applies verified processor events to orders.
type Reconciler struct {
	verifier payment.WebhookVerifier
	orders   repository.OrderRepository
	tracer   trace.Tracer
	events   metric.Int64Counter
}

func NewReconciler(verifier payment.WebhookVerifier, orders repository.OrderRepository) *Reconciler {
	events, err := otel.Meter("storefront/service").Int64Counter("storefront.webhook.events",
		metric.WithDescription("Payment webhook events by type and outcome"))
	if err != nil {
		otel.Handle(err)
	}
	return &Reconciler{
		verifier: verifier,
		orders:   orders,
		tracer:   otel.Tracer("storefront/service"),
		events:   events,
	}
}

// HandleWebhook verifies and applies one delivery. ErrInvalidSignature means
// nothing was read or changed. ErrOrderNotFound is reported but the delivery
// should still be acknowledged, since retrying it cannot succeed.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (res *WebhookResult, err error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.HandleWebhook")
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.ChargedAfterFailure:
			outcome = "charged_after_failure"
		case res.Ignored:
			outcome = "ignored"
		case !res.Changed:
			outcome = "noop"
		}
		evType := ""
		if res != nil {
			evType = string(res.Type)
		}
		if r.events != nil {
			r.events.Add(ctx, 1, metric.WithAttributes(
				attribute.String("type", evType),
				attribute.String("outcome", outcome),
			))
		}
		span.End()
	}()

	ev, err := r.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		slog.WarnContext(ctx, "webhook rejected", "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("webhook.event_id", ev.ID), attribute.String("webhook.type", string(ev.Type)))

	res = &WebhookResult{EventID: ev.ID, Type: ev.Type}

	var kind domain.EventKind
	var reason string
	switch ev.Type {
	case payment.EventPaymentSucceeded:
		kind = domain.EventPaymentSucceeded
	case payment.EventPaymentFailed:
		kind = domain.EventPaymentFailed
		reason = ev.FailureMessage
		if reason == "" {
			reason = notify.DefaultFailureReason
		}
	default:
		slog.InfoContext(ctx, "unhandled webhook event type", "event_id", ev.ID, "type", ev.Type)
		res.Ignored = true
		return res, nil
	}

	orderID, perr := uuid.Parse(ev.OrderID)
	if perr != nil {
		slog.ErrorContext(ctx, "webhook event without a valid order id",
			"event_id", ev.ID, "intent_id", ev.IntentID, "order_id", ev.OrderID)
		return nil, fmt.Errorf("%w: event %s has order id %q", ErrOrderNotFound, ev.ID, ev.OrderID)
	}
	res.OrderID = orderID
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	order, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			slog.ErrorContext(ctx, "webhook for unknown order",
				"event_id", ev.ID, "intent_id", ev.IntentID, "order_id", orderID.String())
		}
		return nil, err
	}

	out, err := applyEvent(ctx, r.orders, order, kind, reason, nil)
	if err != nil {
		return nil, err
	}
	res.From, res.To, res.Changed = out.From, out.To, out.Changed

	if kind == domain.EventPaymentSucceeded && !out.Changed {
		res.ChargedAfterFailure = r.chargedAfterFailure(ctx, order, out)
		if res.ChargedAfterFailure {
			span.SetAttributes(attribute.Bool("payment.charged_after_failure", true))
			slog.ErrorContext(ctx, "payment captured for a failed order, refund or fulfil manually",
				"event_id", ev.ID, "intent_id", ev.IntentID, "order_id", orderID.String(),
				"order_intent_id", order.PaymentIntentID, "amount", order.TotalAmount, "currency", order.Currency)
		}
	}
	return res, nil
}

// chargedAfterFailure reports whether a success that did not move the order
// landed on a failed one. A lost compare-and-set means the status is re-read.
func (r *Reconciler) chargedAfterFailure(ctx context.Context, order *domain.Order, out transitionOutcome) bool {
	if out.From == domain.OrderStatusFailed {
		return true
	}
	if out.From != domain.OrderStatusPending {
		return false
	}
	current, err := r.orders.GetOrderByID(ctx, order.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to re-read order after lost update", "order_id", order.ID.String(), "error", err)
		return false
	}
	return current.Status == domain.OrderStatusFailed
}
