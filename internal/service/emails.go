package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/google/uuid"
)

var ErrInvalidEmailRequest = errors.New("invalid email request")

type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) notify.Result
}

// EmailRequest is a back-office send. Type is one of test, order_confirmation,
// order_shipped, payment_failed, welcome or custom.
type EmailRequest struct {
	Type    string
	Email   string
	Name    string
	OrderID *uuid.UUID
	Subject string
	HTML    string
	Text    string
}

const (
	testEmailSubject = "Test Email from Your Store"
	testEmailHTML    = "<h1>Test Email</h1><p>This is a test email from your e-commerce store.</p>"
	testEmailText    = "This is a test email from your e-commerce store."
)

type EmailService struct {
	orders     OrderGetter
	dispatcher Dispatcher
}

type OrderGetter interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

func NewEmailService(orders OrderGetter, dispatcher Dispatcher) *EmailService {
	return &EmailService{orders: orders, dispatcher: dispatcher}
}

// Send validates req and dispatches it. Validation and lookup failures are
// returned as errors; delivery failures are reported in the Result.
func (s *EmailService) Send(ctx context.Context, p Principal, req EmailRequest) (notify.Result, error) {
	if !p.IsAdmin() {
		return notify.Result{}, ErrForbidden
	}

	n, err := s.build(ctx, req)
	if err != nil {
		return notify.Result{}, err
	}
	return s.dispatcher.Dispatch(ctx, n), nil
}

func (s *EmailService) build(ctx context.Context, req EmailRequest) (domain.Notification, error) {
	switch req.Type {
	case "test":
		if strings.TrimSpace(req.Email) == "" {
			return nil, fmt.Errorf("%w: email required", ErrInvalidEmailRequest)
		}
		return domain.Custom{To: req.Email, Subject: testEmailSubject, HTML: testEmailHTML, Text: testEmailText}, nil

	case "order_confirmation", "order_shipped", "payment_failed":
		if req.OrderID == nil {
			return nil, fmt.Errorf("%w: order id required", ErrInvalidEmailRequest)
		}
		order, err := s.orders.GetOrderByID(ctx, *req.OrderID)
		if err != nil {
			return nil, err
		}
		switch req.Type {
		case "order_confirmation":
			return domain.OrderConfirmation{Order: order}, nil
		case "order_shipped":
			return domain.OrderShipped{Order: order, Tracking: order.Tracking}, nil
		default:
			return domain.PaymentFailed{Order: order, Reason: order.FailureReason}, nil
		}

	case "welcome":
		if strings.TrimSpace(req.Email) == "" {
			return nil, fmt.Errorf("%w: email required", ErrInvalidEmailRequest)
		}
		return domain.Welcome{Email: req.Email, Name: req.Name}, nil

	case "custom":
		if strings.TrimSpace(req.Email) == "" || req.Subject == "" || req.HTML == "" {
			return nil, fmt.Errorf("%w: email, subject and html content required", ErrInvalidEmailRequest)
		}
		return domain.Custom{To: req.Email, Subject: req.Subject, HTML: req.HTML, Text: req.Text}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEmailRequest, req.Type)
}
