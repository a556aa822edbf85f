package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

type OrderService struct {
	orders repository.OrderRepository
}

func NewOrderService(orders repository.OrderRepository) *OrderService {
	return &OrderService{orders: orders}
}

// ListOrders returns the caller's orders. Admins may list any user's orders
// by setting f.UserID; everyone else is pinned to their own.
func (s *OrderService) ListOrders(ctx context.Context, p Principal, f repository.OrderFilter) ([]*domain.Order, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	if !p.IsAdmin() {
		f.UserID = p.UserID
	}
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("unknown order status %q", f.Status)
	}
	return s.orders.ListOrders(ctx, f)
}

func (s *OrderService) GetOrder(ctx context.Context, p Principal, id uuid.UUID) (*domain.Order, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != p.UserID && !p.IsAdmin() {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ShipOrder marks an order shipped and queues the shipping notification.
func (s *OrderService) ShipOrder(ctx context.Context, p Principal, id uuid.UUID, tracking domain.TrackingInfo) (*domain.Order, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := applyEvent(ctx, s.orders, order, domain.EventShipped, "", &tracking)
	if err != nil {
		return nil, err
	}
	if !out.Changed {
		return nil, fmt.Errorf("%w: cannot ship %s order %s", ErrIllegalTransition, order.Status, order.ID)
	}
	return s.orders.GetOrderByID(ctx, id)
}
