package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/cartstore"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
)

type WishlistService struct {
	repo     cartstore.WishlistRepository
	products ProductLookup
	slots    userSlots
}

func NewWishlistService(repo cartstore.WishlistRepository, products ProductLookup) *WishlistService {
	return &WishlistService{repo: repo, products: products}
}

func (s *WishlistService) GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error) {
	w, err := s.repo.GetWishlist(ctx, userID)
	if errors.Is(err, cartstore.ErrWishlistNotFound) {
		return domain.NewWishlist(userID), nil
	}
	return w, err
}

// AddItem is idempotent: adding a product twice keeps a single entry.
func (s *WishlistService) AddItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %s: %w", productID, err)
	}

	return s.mutate(ctx, userID, func(w *domain.Wishlist) bool {
		return w.Add(domain.WishlistItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Currency:  p.Currency,
		})
	})
}

func (s *WishlistService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error) {
	return s.mutate(ctx, userID, func(w *domain.Wishlist) bool {
		return w.Remove(productID)
	})
}

func (s *WishlistService) Clear(ctx context.Context, userID string) (*domain.Wishlist, error) {
	return s.mutate(ctx, userID, func(w *domain.Wishlist) bool {
		if w.Count() == 0 {
			return false
		}
		w.Clear()
		return true
	})
}

func (s *WishlistService) mutate(ctx context.Context, userID string, apply func(*domain.Wishlist) bool) (*domain.Wishlist, error) {
	unlock := s.slots.lock(userID)
	defer unlock()

	w, err := s.GetWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !apply(w) {
		return w, nil
	}
	if err := s.repo.SaveWishlist(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}
