package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
	boom bool
}

func (f *fakeTransport) Send(_ context.Context, msg Message) (string, error) {
	if f.boom {
		panic("transport exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

type fakeLog struct {
	entries []repository.EmailLogEntry
}

func (f *fakeLog) LogEmail(_ context.Context, e repository.EmailLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

var testStore = StoreInfo{
	Name:         "Your E-Commerce Store",
	SupportEmail: "support@yourstore.com",
	URL:          "http://localhost:3000/",
	From:         "noreply@yourstore.com",
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:            uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301"),
		UserID:        "user-1",
		CustomerEmail: "ada@example.com",
		TotalAmount:   6997,
		Currency:      "usd",
		Status:        domain.OrderStatusPending,
		Shipping: domain.ShippingInfo{
			FirstName: "Ada", LastName: "Lovelace", Address: "12 St James's Sq",
			City: "London", PostalCode: "SW1Y 4JH", Country: "GB",
		},
		Items: []domain.OrderItem{
			{ProductID: "tshirt-logo", ProductName: "T-shirt Logo", Quantity: 2, UnitPriceAtPurchase: 2499},
			{ProductID: "cap-baseball", ProductName: "Baseball Cap", Quantity: 1, UnitPriceAtPurchase: 1999},
		},
		CreatedAt: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_OrderConfirmation(t *testing.T) {
	tr := &fakeTransport{}
	log := &fakeLog{}
	d := NewDispatcher(tr, testStore, log)

	res := d.Dispatch(context.Background(), domain.OrderConfirmation{Order: testOrder()})

	require.True(t, res.Success)
	assert.Equal(t, "msg-1", res.MessageID)
	require.Len(t, tr.sent, 1)

	msg := tr.sent[0]
	assert.Equal(t, "noreply@yourstore.com", msg.From)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Order Confirmation - #e82c3301", msg.Subject)
	assert.Equal(t, "Your order #e82c3301 has been confirmed. Total: $69.97", msg.Text)
	assert.Contains(t, msg.HTML, "Thank you for your order, Valued Customer!")
	assert.Contains(t, msg.HTML, "Quantity: 2 &times; $24.99")
	assert.Contains(t, msg.HTML, "Subtotal: $49.98")
	assert.Contains(t, msg.HTML, "Total: $69.97")
	assert.Contains(t, msg.HTML, "St James&#39;s Sq")

	require.Len(t, log.entries, 1)
	assert.True(t, log.entries[0].Success)
	assert.Equal(t, domain.KindOrderConfirmation, log.entries[0].Kind)
	require.NotNil(t, log.entries[0].OrderID)
	assert.Equal(t, testOrder().ID, *log.entries[0].OrderID)
}

func TestDispatch_PaymentFailedDefaultsReason(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testStore, nil)

	res := d.Dispatch(context.Background(), domain.PaymentFailed{Order: testOrder()})
	require.True(t, res.Success)

	msg := tr.sent[0]
	assert.Equal(t, "Payment Failed - Order #e82c3301", msg.Subject)
	assert.Contains(t, msg.HTML, "<strong>Payment method was declined</strong>")
	assert.Contains(t, msg.HTML, `href="http://localhost:3000/checkout"`)
}

func TestDispatch_PaymentFailedCarriesReason(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testStore, nil)

	d.Dispatch(context.Background(), domain.PaymentFailed{Order: testOrder(), Reason: "Your card has insufficient funds."})
	assert.Contains(t, tr.sent[0].Text, "Your card has insufficient funds.")
}

func TestDispatch_OrderShipped(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testStore, nil)

	d.Dispatch(context.Background(), domain.OrderShipped{
		Order:    testOrder(),
		Tracking: domain.TrackingInfo{TrackingNumber: "1Z999", Carrier: "UPS", TrackingURL: "https://ups.example/1Z999"},
	})

	msg := tr.sent[0]
	assert.Equal(t, "Order Shipped - #e82c3301", msg.Subject)
	assert.Contains(t, msg.HTML, "Tracking Number:</strong> 1Z999")
	assert.Contains(t, msg.HTML, "Estimated delivery: 3-5 business days")
	assert.Contains(t, msg.Text, "Tracking: 1Z999 (UPS)")
}

func TestDispatch_PaymentSucceeded(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testStore, nil)

	d.Dispatch(context.Background(), domain.PaymentSucceeded{Order: testOrder()})

	msg := tr.sent[0]
	assert.Equal(t, "Payment Received - Order #e82c3301", msg.Subject)
	assert.Contains(t, msg.HTML, "$69.97")
}

func TestDispatch_WelcomeAndCustom(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testStore, nil)

	d.Dispatch(context.Background(), domain.Welcome{Email: "new@example.com"})
	d.Dispatch(context.Background(), domain.Custom{To: "x@example.com", Subject: "Hi", HTML: "<p>raw</p>", Text: "raw"})

	require.Len(t, tr.sent, 2)
	assert.Equal(t, "Welcome to Your E-Commerce Store!", tr.sent[0].Subject)
	assert.Equal(t, "Welcome New Customer! Thank you for joining Your E-Commerce Store.", tr.sent[0].Text)
	assert.Equal(t, Message{From: testStore.From, To: "x@example.com", Subject: "Hi", HTML: "<p>raw</p>", Text: "raw"}, tr.sent[1])
}

func TestDispatch_NeverFailsPastBoundary(t *testing.T) {
	log := &fakeLog{}

	res := NewDispatcher(&fakeTransport{err: errors.New("smtp 421")}, testStore, log).
		Dispatch(context.Background(), domain.OrderConfirmation{Order: testOrder()})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNotificationDeliveryFailed)
	assert.ErrorContains(t, res.Err, "smtp 421")

	res = NewDispatcher(&fakeTransport{boom: true}, testStore, log).
		Dispatch(context.Background(), domain.PaymentSucceeded{Order: testOrder()})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNotificationDeliveryFailed)

	res = NewDispatcher(&fakeTransport{}, testStore, log).
		Dispatch(context.Background(), domain.OrderConfirmation{})
	assert.False(t, res.Success)

	res = NewDispatcher(&fakeTransport{}, testStore, log).
		Dispatch(context.Background(), domain.Custom{To: "x@example.com"})
	assert.False(t, res.Success)

	require.Len(t, log.entries, 4)
	for _, e := range log.entries {
		assert.False(t, e.Success)
		assert.NotEmpty(t, e.Error)
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$69.97", FormatMoney(6997, "usd"))
	assert.Equal(t, "$0.05", FormatMoney(5, "USD"))
	assert.Equal(t, "€24.99", FormatMoney(2499, "eur"))
	assert.Equal(t, "-$1.00", FormatMoney(-100, "usd"))
	assert.Equal(t, "1500 JPY", FormatMoney(1500, "jpy"))
	assert.Equal(t, "12.34 CHF", FormatMoney(1234, "chf"))
}
