package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
}

func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:     client.New(secretKey, backends),
		breaker: newBreaker("stripe"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*stripe.PaymentIntent] {
	return gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// declined cards and bad requests are not outages
		IsSuccessful: func(err error) bool {
			var se *stripe.Error
			if errors.As(err, &se) {
				return se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// CreatePaymentIntent is idempotent per order: the same order id always maps
// to the same processor idempotency key.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Shipping: &stripe.ShippingDetailsParams{
			Name: stripe.String(req.Shipping.FullName()),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(req.Shipping.Address),
				City:       stripe.String(req.Shipping.City),
				PostalCode: stripe.String(req.Shipping.PostalCode),
				Country:    stripe.String(req.Shipping.Country),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID.String())
	params.AddMetadata("userId", req.UserID)
	params.SetIdempotencyKey("order-" + req.OrderID.String())

	pi, err := g.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Get(intentID, params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe get payment intent %s: %w", intentID, err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}
