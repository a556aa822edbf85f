package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WishlistService interface {
	GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error)
	AddItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error)
	Clear(ctx context.Context, userID string) (*domain.Wishlist, error)
}

type WishlistHandler struct {
	wishlists WishlistService
	timeout   time.Duration
}

func NewWishlistHandler(wishlists WishlistService, timeout time.Duration) *WishlistHandler {
	return &WishlistHandler{wishlists: wishlists, timeout: timeout}
}

type WishlistRequestDTO struct {
	ProductID string `json:"product_id"`
}

type WishlistResponseDTO struct {
	UserID    string                `json:"user_id"`
	Items     []domain.WishlistItem `json:"items"`
	Count     int                   `json:"count"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func toWishlistResponse(wl *domain.Wishlist) WishlistResponseDTO {
	items := wl.Items
	if items == nil {
		items = []domain.WishlistItem{}
	}
	return WishlistResponseDTO{UserID: wl.UserID, Items: items, Count: wl.Count(), UpdatedAt: wl.UpdatedAt}
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Wishlist, error) {
		return h.wishlists.GetWishlist(ctx, userID)
	})
}

func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req WishlistRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	h.serve(w, r, http.StatusCreated, func(ctx context.Context, userID string) (*domain.Wishlist, error) {
		return h.wishlists.AddItem(ctx, userID, req.ProductID)
	})
}

func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Wishlist, error) {
		return h.wishlists.RemoveItem(ctx, userID, productID)
	})
}

func (h *WishlistHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Wishlist, error) {
		return h.wishlists.Clear(ctx, userID)
	})
}

func (h *WishlistHandler) serve(w http.ResponseWriter, r *http.Request, status int, call func(context.Context, string) (*domain.Wishlist, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := getPrincipal(r.Context())
	if !p.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	wl, err := call(ctx, p.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, status, toWishlistResponse(wl))
}
