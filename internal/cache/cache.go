// Package cache holds read-through copies of carts. The cart store stays
// authoritative: entries expire on their own and every cart write deletes
// the owner's entry.
package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/internal/domain"
)

// ErrMiss means no usable entry exists for the user. Callers fall back to
// the cart store.
var ErrMiss = errors.New("cart not cached")

// CartCache is keyed by user id. Implementations must be safe for
// concurrent use; a Set racing a Delete may leave either state, so writers
// that care check their own ordering.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var _ CartCache = (*RedisCache)(nil)
