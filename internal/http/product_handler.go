package http

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, f catalog.ListFilter) ([]*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type ProductHandler struct {
	products ProductStore
	timeout  time.Duration
}

func NewProductHandler(products ProductStore, timeout time.Duration) *ProductHandler {
	return &ProductHandler{products: products, timeout: timeout}
}

// ProductRequestDTO carries the price in major units ("24.99"); it is stored
// as minor units.
type ProductRequestDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

func (req ProductRequestDTO) validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "name is required"
	case strings.TrimSpace(req.Description) == "":
		return "description is required"
	case toMinorUnits(req.Price) <= 0:
		return "price must be at least 0.01"
	case strings.TrimSpace(req.Category) == "":
		return "category is required"
	}
	return ""
}

func (req ProductRequestDTO) apply(p *domain.Product) {
	p.Name = strings.TrimSpace(req.Name)
	p.Description = strings.TrimSpace(req.Description)
	p.Price = toMinorUnits(req.Price)
	p.Category = strings.TrimSpace(req.Category)
	p.ImageURL = req.ImageURL
	if req.Currency != "" {
		p.Currency = strings.ToLower(req.Currency)
	}
}

func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

type ProductListResponseDTO struct {
	Products []*domain.Product `json:"products"`
	Count    int               `json:"count"`
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.ListProducts(ctx, catalog.ListFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	respondJSON(w, http.StatusOK, ProductListResponseDTO{Products: products, Count: len(products)})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.products.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleCatalogError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_product", msg)
		return
	}

	product := &domain.Product{ID: req.ID, Currency: "usd"}
	if product.ID == "" {
		product.ID = slugify(req.Name)
	}
	req.apply(product)

	if err := h.products.CreateProduct(ctx, product); err != nil {
		h.handleCatalogError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_product", msg)
		return
	}

	product, err := h.products.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleCatalogError(w, r, err)
		return
	}
	req.apply(product)

	if err := h.products.UpdateProduct(ctx, product); err != nil {
		h.handleCatalogError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.products.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		h.handleCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, catalog.ErrProductExists):
		respondError(w, http.StatusConflict, "product_exists", "product already exists")
	default:
		handleServiceError(w, r, err)
	}
}
