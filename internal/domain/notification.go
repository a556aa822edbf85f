package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindOrderConfirmation NotificationKind = "order_confirmation"
	KindPaymentSucceeded  NotificationKind = "payment_succeeded"
	KindPaymentFailed     NotificationKind = "payment_failed"
	KindOrderShipped      NotificationKind = "order_shipped"
	KindWelcome           NotificationKind = "welcome"
	KindCustom            NotificationKind = "custom"
)

// Notification is a closed set of message variants. Only types in this
// package implement it.
type Notification interface {
	Kind() NotificationKind
	Recipient() string
	sealed()
}

type OrderConfirmation struct {
	Order *Order
}

type PaymentSucceeded struct {
	Order *Order
}

type PaymentFailed struct {
	Order  *Order
	Reason string
}

type OrderShipped struct {
	Order    *Order
	Tracking TrackingInfo
}

type Welcome struct {
	Email string
	Name  string
}

type Custom struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (OrderConfirmation) Kind() NotificationKind { return KindOrderConfirmation }
func (PaymentSucceeded) Kind() NotificationKind  { return KindPaymentSucceeded }
func (PaymentFailed) Kind() NotificationKind     { return KindPaymentFailed }
func (OrderShipped) Kind() NotificationKind      { return KindOrderShipped }
func (Welcome) Kind() NotificationKind           { return KindWelcome }
func (Custom) Kind() NotificationKind            { return KindCustom }

func (n OrderConfirmation) Recipient() string { return emailOf(n.Order) }
func (n PaymentSucceeded) Recipient() string  { return emailOf(n.Order) }
func (n PaymentFailed) Recipient() string     { return emailOf(n.Order) }
func (n OrderShipped) Recipient() string      { return emailOf(n.Order) }
func (n Welcome) Recipient() string           { return n.Email }
func (n Custom) Recipient() string            { return n.To }

func emailOf(o *Order) string {
	if o == nil {
		return ""
	}
	return o.CustomerEmail
}

func (OrderConfirmation) sealed() {}
func (PaymentSucceeded) sealed()  {}
func (PaymentFailed) sealed()     {}
func (OrderShipped) sealed()      {}
func (Welcome) sealed()           {}
func (Custom) sealed()            {}

// OrderEvent is the outbox payload published to the order-events topic.
type OrderEvent struct {
	Kind       NotificationKind `json:"kind"`
	OrderID    uuid.UUID        `json:"order_id"`
	UserID     string           `json:"user_id"`
	Reason     string           `json:"reason,omitempty"`
	Tracking   *TrackingInfo    `json:"tracking,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
