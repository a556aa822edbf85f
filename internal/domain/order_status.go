package domain

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
	OrderStatusShipped OrderStatus = "shipped"
)

// EventKind is an input to the order state machine.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventShipped          EventKind = "shipped"
)

type transitionKey struct {
	from OrderStatus
	kind EventKind
}

var transitions = map[transitionKey]OrderStatus{
	{OrderStatusPending, EventPaymentSucceeded}: OrderStatusPaid,
	{OrderStatusPending, EventPaymentFailed}:    OrderStatusFailed,
	{OrderStatusPending, EventShipped}:          OrderStatusShipped,
	{OrderStatusPaid, EventShipped}:             OrderStatusShipped,
}

// Transition returns the next status for an event. ok is false when the
// event does not apply to the current status; callers treat that as a no-op.
// The first terminal payment event wins: paid and failed never flip.
func Transition(current OrderStatus, kind EventKind) (OrderStatus, bool) {
	next, ok := transitions[transitionKey{current, kind}]
	if !ok {
		return current, false
	}
	return next, true
}

// IsSettled reports whether the payment outcome is known.
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusShipped
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusShipped:
		return true
	}
	return false
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
