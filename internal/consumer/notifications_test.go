package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOrders map[uuid.UUID]*domain.Order

func (m mockOrders) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

type rescheduled struct {
	kind    domain.NotificationKind
	lastErr string
	next    time.Time
}

type mockDeliveries struct {
	rec         *repository.OutboxEvent
	getErr      error
	delivered   []domain.NotificationKind
	rescheduled []rescheduled
	abandoned   []string
}

func (m *mockDeliveries) GetNotification(context.Context, uuid.UUID, domain.NotificationKind) (*repository.OutboxEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.rec == nil {
		return nil, repository.ErrNotificationNotFound
	}
	return m.rec, nil
}

func (m *mockDeliveries) MarkNotificationDelivered(_ context.Context, _ uuid.UUID, kind domain.NotificationKind) error {
	m.delivered = append(m.delivered, kind)
	return nil
}

func (m *mockDeliveries) RescheduleNotification(_ context.Context, _ uuid.UUID, kind domain.NotificationKind, lastErr string, next time.Time) error {
	m.rescheduled = append(m.rescheduled, rescheduled{kind, lastErr, next})
	return nil
}

func (m *mockDeliveries) AbandonNotification(_ context.Context, _ uuid.UUID, _ domain.NotificationKind, lastErr string) error {
	if m.rec == nil {
		return repository.ErrNotificationNotFound
	}
	m.abandoned = append(m.abandoned, lastErr)
	return nil
}

type mockDispatcher struct {
	sent []domain.Notification
	fail bool
}

func (m *mockDispatcher) Dispatch(_ context.Context, n domain.Notification) notify.Result {
	m.sent = append(m.sent, n)
	if m.fail {
		return notify.Result{Err: notify.ErrNotificationDeliveryFailed}
	}
	return notify.Result{Success: true, MessageID: "msg-1"}
}

var fixedNow = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func setup(order *domain.Order) (*NotificationHandler, *mockDeliveries, *mockDispatcher) {
	deliveries := &mockDeliveries{}
	dispatcher := &mockDispatcher{}
	h := NewNotificationHandler(mockOrders{order.ID: order}, deliveries, dispatcher)
	h.now = func() time.Time { return fixedNow }
	return h, deliveries, dispatcher
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		UserID:        "user-1",
		CustomerEmail: "ada@example.com",
		Status:        domain.OrderStatusFailed,
		FailureReason: "Your card was declined.",
		Tracking:      domain.TrackingInfo{TrackingNumber: "stored"},
	}
}

func TestNotificationHandler_BuildsVariantPerKind(t *testing.T) {
	order := testOrder()
	h, deliveries, dispatcher := setup(order)

	events := []domain.OrderEvent{
		{Kind: domain.KindOrderConfirmation, OrderID: order.ID},
		{Kind: domain.KindPaymentSucceeded, OrderID: order.ID},
		{Kind: domain.KindPaymentFailed, OrderID: order.ID},
		{Kind: domain.KindOrderShipped, OrderID: order.ID, Tracking: &domain.TrackingInfo{TrackingNumber: "1Z999"}},
	}
	for _, ev := range events {
		require.NoError(t, h.HandleEvent(context.Background(), ev))
	}

	require.Len(t, dispatcher.sent, 4)
	assert.IsType(t, domain.OrderConfirmation{}, dispatcher.sent[0])
	assert.IsType(t, domain.PaymentSucceeded{}, dispatcher.sent[1])

	failed := dispatcher.sent[2].(domain.PaymentFailed)
	assert.Equal(t, "Your card was declined.", failed.Reason)

	shipped := dispatcher.sent[3].(domain.OrderShipped)
	assert.Equal(t, "1Z999", shipped.Tracking.TrackingNumber)

	assert.Len(t, deliveries.delivered, 4)
}

func TestNotificationHandler_SkipsDelivered(t *testing.T) {
	order := testOrder()
	h, deliveries, dispatcher := setup(order)
	now := time.Now()
	deliveries.rec = &repository.OutboxEvent{OrderID: order.ID, Kind: domain.KindPaymentSucceeded, DeliveredAt: &now}

	require.NoError(t, h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: order.ID}))
	assert.Empty(t, dispatcher.sent)
}

func TestNotificationHandler_ReschedulesWithBackoff(t *testing.T) {
	order := testOrder()
	h, deliveries, dispatcher := setup(order)
	dispatcher.fail = true
	deliveries.rec = &repository.OutboxEvent{OrderID: order.ID, Kind: domain.KindPaymentSucceeded, Attempts: 2}

	require.NoError(t, h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: order.ID}))

	require.Len(t, deliveries.rescheduled, 1)
	r := deliveries.rescheduled[0]
	assert.Equal(t, fixedNow.Add(2*time.Minute), r.next)
	assert.Contains(t, r.lastErr, "notification delivery failed")
	assert.Empty(t, deliveries.delivered)
}

func TestNotificationHandler_GivesUpAfterMaxAttempts(t *testing.T) {
	order := testOrder()
	h, deliveries, dispatcher := setup(order)
	dispatcher.fail = true
	deliveries.rec = &repository.OutboxEvent{OrderID: order.ID, Kind: domain.KindPaymentSucceeded, Attempts: MaxDeliveryAttempts - 1}

	require.NoError(t, h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: order.ID}))
	assert.Empty(t, deliveries.rescheduled)
	require.Len(t, deliveries.abandoned, 1)
	assert.Contains(t, deliveries.abandoned[0], "notification delivery failed")
}

func TestNotificationHandler_SkipsAbandoned(t *testing.T) {
	order := testOrder()
	h, deliveries, dispatcher := setup(order)
	now := time.Now()
	deliveries.rec = &repository.OutboxEvent{OrderID: order.ID, Kind: domain.KindPaymentFailed, Attempts: MaxDeliveryAttempts, AbandonedAt: &now}

	require.NoError(t, h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentFailed, OrderID: order.ID}))
	assert.Empty(t, dispatcher.sent)
	assert.Empty(t, deliveries.abandoned)
}

func TestNotificationHandler_UnknownOrderDropped(t *testing.T) {
	h, deliveries, dispatcher := setup(testOrder())
	orphan := uuid.New()
	deliveries.rec = &repository.OutboxEvent{OrderID: orphan, Kind: domain.KindPaymentSucceeded}

	err := h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: orphan})
	require.NoError(t, err)
	assert.Empty(t, dispatcher.sent)
	assert.Equal(t, []string{"order not found"}, deliveries.abandoned)
}

func TestNotificationHandler_StoreErrorIsReturned(t *testing.T) {
	order := testOrder()
	h, deliveries, _ := setup(order)
	deliveries.getErr = errors.New("db down")

	err := h.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: order.ID})
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay(1))
	assert.Equal(t, time.Minute, retryDelay(2))
	assert.Equal(t, 4*time.Minute, retryDelay(4))
	assert.Equal(t, time.Hour, retryDelay(20))
}

type mockCarts struct {
	updatedAt map[string]time.Time
	cleared   []string
}

func (m *mockCarts) ClearCartPaidAt(_ context.Context, userID string, paidAt time.Time) (bool, error) {
	if m.updatedAt[userID].After(paidAt) {
		return false, nil
	}
	m.cleared = append(m.cleared, userID)
	return true, nil
}

func TestCartCleaner(t *testing.T) {
	carts := &mockCarts{}
	c := NewCartCleaner(carts)

	require.NoError(t, c.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindOrderConfirmation, UserID: "user-1"}))
	require.NoError(t, c.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentFailed, UserID: "user-1"}))
	require.NoError(t, c.HandleEvent(context.Background(), domain.OrderEvent{Kind: domain.KindPaymentSucceeded, UserID: "user-1", OccurredAt: fixedNow}))

	assert.Equal(t, []string{"user-1"}, carts.cleared)
}

func TestCartCleaner_PassesPaymentTime(t *testing.T) {
	carts := &mockCarts{updatedAt: map[string]time.Time{"user-1": fixedNow.Add(time.Minute)}}
	c := NewCartCleaner(carts)

	// the buyer refilled the cart after paying; a redelivered event keeps it
	ev := domain.OrderEvent{Kind: domain.KindPaymentSucceeded, OrderID: uuid.New(), UserID: "user-1", OccurredAt: fixedNow}
	require.NoError(t, c.HandleEvent(context.Background(), ev))
	assert.Empty(t, carts.cleared)
}
