package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// LineRequest is what a client may say about a line: which product and how
// many. Prices always come from the catalog.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PricedOrder struct {
	Items    []domain.OrderItem
	Total    int64
	Currency string
}

type PriceResolver struct {
	products ProductLookup
}

func NewPriceResolver(products ProductLookup) *PriceResolver {
	return &PriceResolver{products: products}
}

// Resolve prices every line from the catalog. Lines for the same product are
// merged before the quantity bound is checked.
func (r *PriceResolver) Resolve(ctx context.Context, lines []LineRequest) (*PricedOrder, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	merged := make([]LineRequest, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity < MinQuantity || l.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}

	out := &PricedOrder{Items: make([]domain.OrderItem, 0, len(merged))}
	for _, l := range merged {
		if l.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}

		p, err := r.products.GetProduct(ctx, l.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up product %s: %w", l.ProductID, err)
		}

		currency := strings.ToLower(p.Currency)
		if out.Currency == "" {
			out.Currency = currency
		} else if out.Currency != currency {
			return nil, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, out.Currency, currency)
		}

		item := domain.OrderItem{
			ProductID:           p.ID,
			ProductName:         p.Name,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: p.Price,
		}
		out.Items = append(out.Items, item)
		out.Total += item.Subtotal()
	}
	return out, nil
}
