package domain

import "time"

// Cart is owned by a single user. All amounts are integer minor units.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	UnitPrice int64     `bson:"unit_price" json:"unit_price"`
	Currency  string    `bson:"currency" json:"currency"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

func NewCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Add merges into an existing line with the same product, otherwise appends.
// Quantity is not clamped here; the HTTP layer bounds it.
func (c *Cart) Add(item CartItem, quantity int) {
	c.UpdatedAt = time.Now().UTC()
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += quantity
			return
		}
	}

	item.Quantity = quantity
	if item.AddedAt.IsZero() {
		item.AddedAt = c.UpdatedAt
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) Remove(productID string) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// SetQuantity replaces the quantity of a line. Zero or negative removes it.
func (c *Cart) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.Remove(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			c.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

func (c *Cart) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}

func (c *Cart) Count() int {
	count := 0
	for _, it := range c.Items {
		count += it.Quantity
	}
	return count
}

func (c *Cart) Clear() {
	c.Items = nil
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) Item(productID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}
