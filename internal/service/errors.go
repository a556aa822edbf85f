package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrUnauthorized                = errors.New("authentication required")
	ErrForbidden                   = errors.New("not allowed to access this resource")
	ErrEmptyCart                   = errors.New("cart is empty, nothing to checkout")
	ErrProductNotFound             = errors.New("product not found")
	ErrInvalidQuantity             = errors.New("quantity must be between 1 and 99")
	ErrInvalidShipping             = errors.New("shipping information is incomplete")
	ErrCurrencyMismatch            = errors.New("items must share a single currency")
	ErrMissingEmail                = errors.New("customer email is required")
	ErrPaymentIntentCreationFailed = errors.New("failed to create payment intent")
	ErrOrderNotPending             = errors.New("order is no longer awaiting payment")
	ErrIllegalTransition           = errors.New("illegal transition of order status")
	ErrItemNotInCart               = errors.New("item not in cart")

	ErrInvalidSignature           = payment.ErrInvalidSignature
	ErrOrderNotFound              = repository.ErrOrderNotFound
	ErrNotificationDeliveryFailed = notify.ErrNotificationDeliveryFailed
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

type InvalidShippingError struct {
	Fields []string
}

func (e *InvalidShippingError) Error() string {
	return fmt.Sprintf("missing shipping fields: %s", strings.Join(e.Fields, ", "))
}

func (e *InvalidShippingError) Is(target error) bool {
	return target == ErrInvalidShipping
}

// PaymentIntentError keeps the order id so the caller can retry checkout
// against the same pending order.
type PaymentIntentError struct {
	OrderID uuid.UUID
	Err     error
}

func (e *PaymentIntentError) Error() string {
	return fmt.Sprintf("payment intent for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentIntentError) Is(target error) bool {
	return target == ErrPaymentIntentCreationFailed
}

func (e *PaymentIntentError) Unwrap() error {
	return e.Err
}
