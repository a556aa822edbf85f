package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateNotification = errors.New("notification for this order already enqueued")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrIntentAlreadyAttached = errors.New("order already has a different payment intent")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderFilter struct {
	UserID string
	Status domain.OrderStatus
	Limit  int
	Offset int
}

// StatusChange is a conditional update: it only applies while the order is
// still in From. Event, when set, is enqueued to the outbox in the same
// transaction.
type StatusChange struct {
	OrderID       uuid.UUID
	From          domain.OrderStatus
	To            domain.OrderStatus
	FailureReason string
	Tracking      *domain.TrackingInfo
	Event         *domain.OrderEvent
}

type OutboxEvent struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Kind          domain.NotificationKind
	Payload       []byte
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	DeliveredAt   *time.Time
	AbandonedAt   *time.Time
	CreatedAt     time.Time
}

// MissingNotification is a settled order without the outbox row its status
// implies, e.g. after a crash between the status update and the enqueue.
type MissingNotification struct {
	OrderID       uuid.UUID
	UserID        string
	Kind          domain.NotificationKind
	FailureReason string
	SettledAt     time.Time
}

type EmailLogEntry struct {
	OrderID   *uuid.UUID
	Kind      domain.NotificationKind
	Recipient string
	Success   bool
	MessageID string
	Error     string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	ApplyStatusChange(ctx context.Context, c StatusChange) (bool, error)
}

type OutboxRepository interface {
	EnqueueNotification(ctx context.Context, ev domain.OrderEvent) error
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id uuid.UUID, attempts int) error
	RequeueStalledEvents(ctx context.Context, publishedBefore time.Time, maxAttempts int) (int64, error)
	GetNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) (*OutboxEvent, error)
	MarkNotificationDelivered(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind) error
	RescheduleNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string, next time.Time) error
	AbandonNotification(ctx context.Context, orderID uuid.UUID, kind domain.NotificationKind, lastErr string) error
	GetMissingNotifications(ctx context.Context, settledBefore time.Time, limit int) ([]*MissingNotification, error)
	LogEmail(ctx context.Context, e EmailLogEntry) error
}
