package payment

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
)

type IntentRequest struct {
	OrderID       uuid.UUID
	UserID        string
	Amount        int64
	Currency      string
	CustomerEmail string
	Shipping      domain.ShippingInfo
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

// Event is a verified processor event reduced to what reconciliation needs.
type Event struct {
	ID             string
	Type           EventType
	IntentID       string
	OrderID        string
	UserID         string
	FailureMessage string
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error)
}

type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}
