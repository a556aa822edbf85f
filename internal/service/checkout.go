package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/internal/cartstore"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

type CartReader interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
}

type CheckoutRequest struct {
	// OrderID retries checkout for an existing pending order.
	OrderID  *uuid.UUID
	Items    []LineRequest
	Shipping domain.ShippingInfo
	Email    string
}

type CheckoutResult struct {
	OrderID      uuid.UUID
	ClientSecret string
	Amount       int64
	Currency     string
}

type CheckoutService struct {
	intake  *OrderIntake
	orders  repository.OrderRepository
	gateway payment.Gateway
	carts   CartReader
}

// NewCheckoutService builds the checkout flow. carts may be nil, in which case
// requests must carry their items. carts should read the store directly: an
// order must never be priced from a cached cart.
func NewCheckoutService(intake *OrderIntake, orders repository.OrderRepository, gateway payment.Gateway, carts CartReader) *CheckoutService {
	return &CheckoutService{
		intake:  intake,
		orders:  orders,
		gateway: gateway,
		carts:   carts,
	}
}

// CreatePaymentIntent creates (or, on retry, reuses) a pending order and
// returns a client secret for it. A processor failure leaves the order
// pending and returns a *PaymentIntentError carrying its id.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, p Principal, req CheckoutRequest) (*CheckoutResult, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthorized
	}

	var order *domain.Order
	if req.OrderID != nil {
		existing, err := s.pendingOrder(ctx, p, *req.OrderID)
		if err != nil {
			return nil, err
		}
		if existing.PaymentIntentID != "" {
			return s.reuseIntent(ctx, existing)
		}
		order = existing
	} else {
		items := req.Items
		if len(items) == 0 && s.carts != nil {
			cartItems, err := s.cartLines(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			items = cartItems
		}

		created, err := s.intake.CreateOrder(ctx, p, OrderRequest{
			Items:    items,
			Shipping: req.Shipping,
			Email:    req.Email,
		})
		if err != nil {
			return nil, err
		}
		order = created
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.IntentRequest{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		Shipping:      order.Shipping,
	})
	if err != nil {
		slog.ErrorContext(ctx, "payment intent creation failed",
			"order_id", order.ID.String(), "error", err)
		return nil, &PaymentIntentError{OrderID: order.ID, Err: err}
	}

	if err := s.orders.AttachPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		// The webhook carries the order id in metadata, so reconciliation
		// does not depend on this link.
		slog.WarnContext(ctx, "failed to attach payment intent",
			"order_id", order.ID.String(), "intent_id", intent.ID, "error", err)
	}
	slog.InfoContext(ctx, "payment intent created",
		"order_id", order.ID.String(), "intent_id", intent.ID, "amount", intent.Amount)

	return &CheckoutResult{
		OrderID:      order.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.TotalAmount,
		Currency:     order.Currency,
	}, nil
}

func (s *CheckoutService) pendingOrder(ctx context.Context, p Principal, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// someone else's order looks the same as a missing one
	if order.UserID != p.UserID {
		return nil, ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotPending, order.ID, order.Status)
	}
	return order, nil
}

func (s *CheckoutService) reuseIntent(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return nil, &PaymentIntentError{OrderID: order.ID, Err: err}
	}
	slog.InfoContext(ctx, "reusing payment intent",
		"order_id", order.ID.String(), "intent_id", intent.ID)
	return &CheckoutResult{
		OrderID:      order.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.TotalAmount,
		Currency:     order.Currency,
	}, nil
}

func (s *CheckoutService) cartLines(ctx context.Context, userID string) ([]LineRequest, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if errors.Is(err, cartstore.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	lines := make([]LineRequest, 0, len(cart.Items))
	for _, it := range cart.Items {
		lines = append(lines, LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

// IsRetryable reports whether a checkout failure can be retried with the same
// order id.
func IsRetryable(err error) bool {
	var pie *PaymentIntentError
	return errors.As(err, &pie)
}
