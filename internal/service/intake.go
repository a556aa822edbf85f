package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, ev domain.OrderEvent) error
}

type OrderRequest struct {
	Items    []LineRequest
	Shipping domain.ShippingInfo
	// Email overrides the principal's email when set.
	Email string
}

// OrderIntake turns a validated request into a persisted pending order.
type OrderIntake struct {
	orders   repository.OrderRepository
	queue    NotificationQueue
	resolver *PriceResolver
}

func NewOrderIntake(orders repository.OrderRepository, queue NotificationQueue, resolver *PriceResolver) *OrderIntake {
	return &OrderIntake{orders: orders, queue: queue, resolver: resolver}
}

func (s *OrderIntake) CreateOrder(ctx context.Context, p Principal, req OrderRequest) (*domain.Order, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if missing := req.Shipping.MissingFields(); len(missing) > 0 {
		return nil, &InvalidShippingError{Fields: missing}
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = p.Email
	}
	if email == "" {
		return nil, ErrMissingEmail
	}

	priced, err := s.resolver.Resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = req.Shipping.FullName()
	}
	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        p.UserID,
		CustomerEmail: email,
		CustomerName:  name,
		TotalAmount:   priced.Total,
		Currency:      priced.Currency,
		Status:        domain.OrderStatusPending,
		Shipping:      req.Shipping,
		Items:         priced.Items,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	slog.InfoContext(ctx, "order created",
		"order_id", order.ID.String(),
		"user_id", order.UserID,
		"total", order.TotalAmount,
		"currency", order.Currency,
		"items", len(order.Items),
	)

	// The order is committed; a lost confirmation is re-enqueued by the
	// outbox recovery tick, so the failure is only logged.
	err = s.queue.EnqueueNotification(ctx, domain.OrderEvent{
		Kind:       domain.KindOrderConfirmation,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateNotification) {
		slog.ErrorContext(ctx, "failed to enqueue order confirmation",
			"order_id", order.ID.String(), "error", err)
	}

	return order, nil
}
