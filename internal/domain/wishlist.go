package domain

import "time"

// Wishlist has set semantics keyed by product id.
type Wishlist struct {
	ID        string         `bson:"_id,omitempty" json:"-"`
	UserID    string         `bson:"user_id" json:"user_id"`
	Items     []WishlistItem `bson:"items" json:"items"`
	UpdatedAt time.Time      `bson:"updated_at" json:"updated_at"`
}

type WishlistItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	UnitPrice int64     `bson:"unit_price" json:"unit_price"`
	Currency  string    `bson:"currency" json:"currency"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

func NewWishlist(userID string) *Wishlist {
	return &Wishlist{UserID: userID, UpdatedAt: time.Now().UTC()}
}

// Add is a no-op when the product is already present.
func (w *Wishlist) Add(item WishlistItem) bool {
	if w.Has(item.ProductID) {
		return false
	}
	w.UpdatedAt = time.Now().UTC()
	if item.AddedAt.IsZero() {
		item.AddedAt = w.UpdatedAt
	}
	w.Items = append(w.Items, item)
	return true
}

func (w *Wishlist) Remove(productID string) bool {
	for i := range w.Items {
		if w.Items[i].ProductID == productID {
			w.Items = append(w.Items[:i], w.Items[i+1:]...)
			w.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

func (w *Wishlist) Has(productID string) bool {
	for _, it := range w.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

func (w *Wishlist) Count() int {
	return len(w.Items)
}

func (w *Wishlist) Clear() {
	w.Items = nil
	w.UpdatedAt = time.Now().UTC()
}
