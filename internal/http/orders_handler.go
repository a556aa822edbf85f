package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/fjod/go_storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultOrderLimit = 20
	maxOrderLimit     = 100
)

type OrderService interface {
	ListOrders(ctx context.Context, p service.Principal, f repository.OrderFilter) ([]*domain.Order, error)
	GetOrder(ctx context.Context, p service.Principal, id uuid.UUID) (*domain.Order, error)
	ShipOrder(ctx context.Context, p service.Principal, id uuid.UUID, tracking domain.TrackingInfo) (*domain.Order, error)
}

type EmailSender interface {
	Send(ctx context.Context, p service.Principal, req service.EmailRequest) (notify.Result, error)
}

type OrdersHandler struct {
	orders  OrderService
	emails  EmailSender
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, emails EmailSender, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, emails: emails, timeout: timeout}
}

type OrderListResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
	Count  int             `json:"count"`
}

// ListOrders serves both the customer and the admin listing; the service
// pins non-admins to their own orders.
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := repository.OrderFilter{
		UserID: q.Get("user_id"),
		Status: domain.OrderStatus(q.Get("status")),
		Limit:  defaultOrderLimit,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be one of pending, paid, failed, shipped")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxOrderLimit {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			respondError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	orders, err := h.orders.ListOrders(ctx, getPrincipal(r.Context()), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{Orders: orders, Count: len(orders)})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, getPrincipal(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var tracking domain.TrackingInfo
	if !decodeJSON(w, r, &tracking) {
		return
	}

	order, err := h.orders.ShipOrder(ctx, getPrincipal(r.Context()), id, tracking)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

type SendEmailRequestDTO struct {
	Type       string     `json:"type"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	OrderID    *uuid.UUID `json:"orderId,omitempty"`
	CustomData struct {
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Text    string `json:"text"`
	} `json:"customData"`
}

type SendEmailResponseDTO struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *OrdersHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SendEmailRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.emails.Send(ctx, getPrincipal(r.Context()), service.EmailRequest{
		Type:    req.Type,
		Email:   req.Email,
		Name:    req.Name,
		OrderID: req.OrderID,
		Subject: req.CustomData.Subject,
		HTML:    req.CustomData.HTML,
		Text:    req.CustomData.Text,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if !res.Success {
		msg := "email delivery failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		respondJSON(w, http.StatusBadGateway, SendEmailResponseDTO{Error: msg})
		return
	}
	respondJSON(w, http.StatusOK, SendEmailResponseDTO{Success: true, MessageID: res.MessageID})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
