package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ShippingInfo struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (s ShippingInfo) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// MissingFields lists the json names of blank fields.
func (s ShippingInfo) MissingFields() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("first_name", s.FirstName)
	check("last_name", s.LastName)
	check("address", s.Address)
	check("city", s.City)
	check("postal_code", s.PostalCode)
	check("country", s.Country)
	return missing
}

// OrderItem snapshots the price at purchase time. It is never recomputed.
type OrderItem struct {
	ProductID           string `json:"product_id"`
	ProductName         string `json:"product_name"`
	Quantity            int    `json:"quantity"`
	UnitPriceAtPurchase int64  `json:"unit_price"`
}

func (i OrderItem) Subtotal() int64 {
	return i.UnitPriceAtPurchase * int64(i.Quantity)
}

type TrackingInfo struct {
	TrackingNumber    string `json:"tracking_number,omitempty"`
	Carrier           string `json:"carrier,omitempty"`
	TrackingURL       string `json:"tracking_url,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

type Order struct {
	ID              uuid.UUID    `json:"id"`
	UserID          string       `json:"user_id"`
	CustomerEmail   string       `json:"customer_email"`
	CustomerName    string       `json:"customer_name,omitempty"`
	TotalAmount     int64        `json:"total_amount"`
	Currency        string       `json:"currency"`
	Status          OrderStatus  `json:"status"`
	Shipping        ShippingInfo `json:"shipping"`
	PaymentIntentID string       `json:"payment_intent_id,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	Tracking        TrackingInfo `json:"tracking"`
	Items           []OrderItem  `json:"items"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ShortID is the last eight characters of the id, used in customer messages.
func (o *Order) ShortID() string {
	s := o.ID.String()
	if len(s) <= 8 {
		return s
	}
	return s[len(s)-8:]
}
