package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
)

type CartClearer interface {
	ClearCartPaidAt(ctx context.Context, userID string, paidAt time.Time) (bool, error)
}

// CartCleaner empties the buyer's cart once their payment succeeds. The
// clear is keyed to the payment time, so redelivered events leave carts
// the buyer filled again untouched.
type CartCleaner struct {
	carts CartClearer
}

func NewCartCleaner(carts CartClearer) *CartCleaner {
	return &CartCleaner{carts: carts}
}

func (c *CartCleaner) HandleEvent(ctx context.Context, ev domain.OrderEvent) error {
	if ev.Kind != domain.KindPaymentSucceeded || ev.UserID == "" {
		return nil
	}
	cleared, err := c.carts.ClearCartPaidAt(ctx, ev.UserID, ev.OccurredAt)
	if err != nil {
		return err
	}
	if cleared {
		slog.InfoContext(ctx, "cart cleared after payment", "user_id", ev.UserID, "order_id", ev.OrderID.String())
	}
	return nil
}
