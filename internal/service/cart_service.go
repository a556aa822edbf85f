package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cartstore"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"golang.org/x/sync/singleflight"
)

const userSlotCount = 64

// userSlots serializes writes per user and counts cache invalidations.
// Carts are single-writer; two requests for the same user must not
// interleave their read-modify-write. Users share a slot by hash.
type userSlots struct {
	mu  [userSlotCount]sync.Mutex
	gen [userSlotCount]atomic.Uint64
}

func slotOf(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % userSlotCount
}

func (l *userSlots) lock(userID string) func() {
	m := &l.mu[slotOf(userID)]
	m.Lock()
	return m.Unlock
}

func (l *userSlots) generation(userID string) uint64 {
	return l.gen[slotOf(userID)].Load()
}

func (l *userSlots) bump(userID string) {
	l.gen[slotOf(userID)].Add(1)
}

type CartService struct {
	repo     cartstore.CartRepository
	cache    cache.CartCache
	products ProductLookup
	sfg      singleflight.Group // Prevents cache stampede
	slots    userSlots
}

func NewCartService(repo cartstore.CartRepository, cache cache.CartCache, products ProductLookup) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cache,
		products: products,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "cache get error", "user_id", userID, "error", err) // continue to the store
		}

		gen := s.slots.generation(userID)
		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, cartstore.ErrCartNotFound) {
			return domain.NewCart(userID), nil
		}
		if err != nil {
			return nil, err
		}

		go s.fillCache(userID, cart, gen)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem adds quantity of a catalog product. Name and price are taken from
// the catalog. A merged line is capped at MaxQuantity.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %s: %w", productID, err)
	}

	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		c.Add(domain.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Currency:  p.Currency,
		}, quantity)
		if it, _ := c.Item(p.ID); it.Quantity > MaxQuantity {
			c.SetQuantity(p.ID, MaxQuantity)
		}
		return nil
	})
}

// UpdateQuantity sets a line's quantity; zero removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		if _, ok := c.Item(productID); !ok {
			return ErrItemNotInCart
		}
		c.SetQuantity(productID, quantity)
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
}

// ClearCartPaidAt empties the cart after a payment made at paidAt. A cart
// changed after paidAt is kept, so a late or repeated payment event never
// drops items added since. Reports whether the cart was cleared.
func (s *CartService) ClearCartPaidAt(ctx context.Context, userID string, paidAt time.Time) (bool, error) {
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	unlock := s.slots.lock(userID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, cartstore.ErrCartNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cart.UpdatedAt.After(paidAt) {
		slog.InfoContext(ctx, "cart changed after payment, keeping it",
			"user_id", userID, "cart_updated_at", cart.UpdatedAt, "paid_at", paidAt)
		return false, nil
	}

	err = s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, cartstore.ErrCartNotFound) {
		return false, err
	}
	s.invalidateCache(userID)
	return true, nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	unlock := s.slots.lock(userID)
	defer unlock()

	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, cartstore.ErrCartNotFound) {
		slog.ErrorContext(ctx, "repo delete cart error", "user_id", userID, "error", err)
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) mutate(ctx context.Context, userID string, apply func(*domain.Cart) error) (*domain.Cart, error) {
	unlock := s.slots.lock(userID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, cartstore.ErrCartNotFound) {
		cart = domain.NewCart(userID)
	} else if err != nil {
		return nil, err
	}

	if err := apply(cart); err != nil {
		return nil, err
	}

	if err := s.repo.SaveCart(ctx, cart); err != nil {
		slog.ErrorContext(ctx, "repo save cart error", "user_id", userID, "error", err)
		return nil, err
	}

	s.invalidateCache(userID)
	return cart, nil
}

// fillCache stores a cart read at generation gen. A write that invalidated
// the user in the meantime makes the copy stale: it is skipped, or removed
// again if the invalidation raced the Set.
func (s *CartService) fillCache(userID string, cart *domain.Cart, gen uint64) {
	if s.slots.generation(userID) != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		slog.Warn("cache set error", "user_id", userID, "error", err)
		return
	}
	if s.slots.generation(userID) != gen {
		if err := s.cache.Delete(ctx, userID); err != nil {
			slog.Warn("cache invalidate error", "user_id", userID, "error", err)
		}
	}
}

func (s *CartService) invalidateCache(userID string) {
	s.slots.bump(userID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}
