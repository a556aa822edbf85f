package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/service"
	"github.com/google/uuid"
)

const maxWebhookBytes = 65536

type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, p service.Principal, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type CheckoutHandler struct {
	checkout   CheckoutService
	reconciler WebhookReconciler
	timeout    time.Duration
}

func NewCheckoutHandler(checkout CheckoutService, reconciler WebhookReconciler, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, reconciler: reconciler, timeout: timeout}
}

type CheckoutRequestDTO struct {
	OrderID  *uuid.UUID            `json:"orderId,omitempty"`
	Items    []service.LineRequest `json:"items"`
	Shipping domain.ShippingInfo   `json:"shipping"`
	Email    string                `json:"email"`
}

type CheckoutResponseDTO struct {
	ClientSecret string    `json:"clientSecret"`
	OrderID      uuid.UUID `json:"orderId"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
}

// CheckoutErrorDTO carries the order id when the order was persisted but the
// processor call failed, so the client can retry against the same order.
type CheckoutErrorDTO struct {
	ErrorResponse
	OrderID   string   `json:"orderId,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

func (h *CheckoutHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := getPrincipal(r.Context())
	if !p.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.checkout.CreatePaymentIntent(ctx, p, service.CheckoutRequest{
		OrderID:  req.OrderID,
		Items:    req.Items,
		Shipping: req.Shipping,
		Email:    req.Email,
	})
	if err != nil {
		var intentErr *service.PaymentIntentError
		var shippingErr *service.InvalidShippingError
		switch {
		case errors.As(err, &intentErr):
			slog.ErrorContext(ctx, "payment intent creation failed", "order_id", intentErr.OrderID, "error", intentErr.Err)
			respondJSON(w, http.StatusBadGateway, CheckoutErrorDTO{
				ErrorResponse: ErrorResponse{Error: "payment processor unavailable", Code: "payment_intent_failed"},
				OrderID:       intentErr.OrderID.String(),
				Retryable:     service.IsRetryable(err),
			})
		case errors.As(err, &shippingErr):
			respondJSON(w, http.StatusBadRequest, CheckoutErrorDTO{
				ErrorResponse: ErrorResponse{Error: err.Error(), Code: "invalid_shipping"},
				Fields:        shippingErr.Fields,
			})
		default:
			handleServiceError(w, r, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{
		ClientSecret: res.ClientSecret,
		OrderID:      res.OrderID,
		Amount:       res.Amount,
		Currency:     res.Currency,
	})
}

// PaymentWebhook needs the raw body for signature verification, so it must
// not sit behind anything that consumes or rewrites it.
func (h *CheckoutHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
		return
	}

	res, err := h.reconciler.HandleWebhook(ctx, payload, r.Header.Get(payment.SignatureHeader))
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		// retrying cannot help
		slog.WarnContext(ctx, "webhook for unknown order acknowledged", "error", err)
	case err != nil:
		handleServiceError(w, r, err)
		return
	case res.Ignored:
		slog.DebugContext(ctx, "webhook event ignored", "event_id", res.EventID, "type", res.Type)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
