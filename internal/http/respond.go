package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{service.ErrProductNotFound, http.StatusBadRequest, "product_not_found"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{service.ErrInvalidShipping, http.StatusBadRequest, "invalid_shipping"},
	{service.ErrCurrencyMismatch, http.StatusBadRequest, "currency_mismatch"},
	{service.ErrMissingEmail, http.StatusBadRequest, "missing_email"},
	{service.ErrInvalidEmailRequest, http.StatusBadRequest, "invalid_email_request"},
	{service.ErrPaymentIntentCreationFailed, http.StatusBadGateway, "payment_intent_failed"},
	{service.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{service.ErrItemNotInCart, http.StatusNotFound, "item_not_in_cart"},
	{service.ErrOrderNotPending, http.StatusConflict, "order_not_pending"},
	{service.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{service.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
	{payment.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleServiceError converts service errors to HTTP status codes. Unknown
// errors are logged and reported as 500 without their message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "request_id", getRequestID(r.Context()), "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
