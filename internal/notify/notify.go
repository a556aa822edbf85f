package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

var ErrNotificationDeliveryFailed = errors.New("notification delivery failed")

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport hands a rendered message to an outbound mail service and
// returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Result struct {
	Success   bool
	MessageID string
	Err       error
}

type StoreInfo struct {
	Name         string
	SupportEmail string
	URL          string
	From         string
}

type DeliveryLog interface {
	LogEmail(ctx context.Context, e repository.EmailLogEntry) error
}

type Dispatcher struct {
	transport Transport
	renderer  *Renderer
	store     StoreInfo
	log       DeliveryLog
}

func NewDispatcher(transport Transport, store StoreInfo, log DeliveryLog) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		renderer:  NewRenderer(store),
		store:     store,
		log:       log,
	}
}

// Dispatch renders and sends n. It never returns an error or panics; the
// outcome is reported in the Result and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("%w: panic: %v", ErrNotificationDeliveryFailed, r)}
			d.record(ctx, n, res)
		}
	}()

	msg, err := d.renderer.Render(n)
	if err != nil {
		res = Result{Err: fmt.Errorf("%w: render %s: %v", ErrNotificationDeliveryFailed, n.Kind(), err)}
		d.record(ctx, n, res)
		return res
	}
	msg.From = d.store.From

	if msg.To == "" {
		res = Result{Err: fmt.Errorf("%w: %s has no recipient", ErrNotificationDeliveryFailed, n.Kind())}
		d.record(ctx, n, res)
		return res
	}

	id, err := d.transport.Send(ctx, msg)
	if err != nil {
		res = Result{Err: fmt.Errorf("%w: %v", ErrNotificationDeliveryFailed, err)}
	} else {
		res = Result{Success: true, MessageID: id}
	}
	d.record(ctx, n, res)
	return res
}

func (d *Dispatcher) record(ctx context.Context, n domain.Notification, res Result) {
	orderID := orderIDOf(n)
	attrs := []any{"kind", n.Kind(), "recipient", n.Recipient()}
	if orderID != nil {
		attrs = append(attrs, "order_id", orderID.String())
	}

	entry := repository.EmailLogEntry{
		OrderID:   orderID,
		Kind:      n.Kind(),
		Recipient: n.Recipient(),
		Success:   res.Success,
		MessageID: res.MessageID,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
		slog.ErrorContext(ctx, "email not delivered", append(attrs, "error", res.Err)...)
	} else {
		slog.InfoContext(ctx, "email sent", append(attrs, "message_id", res.MessageID)...)
	}

	if d.log == nil {
		return
	}
	if err := d.log.LogEmail(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to write email log", append(attrs, "error", err)...)
	}
}

func orderIDOf(n domain.Notification) *uuid.UUID {
	var o *domain.Order
	switch v := n.(type) {
	case domain.OrderConfirmation:
		o = v.Order
	case domain.PaymentSucceeded:
		o = v.Order
	case domain.PaymentFailed:
		o = v.Order
	case domain.OrderShipped:
		o = v.Order
	}
	if o == nil {
		return nil
	}
	id := o.ID
	return &id
}
