package service

import (
	"context"
	"sync"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cartstore"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOrders is an in-memory repository.OrderRepository with the same
// compare-and-set and outbox uniqueness rules as the postgres one.
type MockOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	events    []domain.OrderEvent
	seen      map[string]bool
	CreateErr error
}

func newMockOrders() *MockOrders {
	return &MockOrders{
		orders: make(map[uuid.UUID]*domain.Order),
		seen:   make(map[string]bool),
	}
}

func (m *MockOrders) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &cp
	return nil
}

func (m *MockOrders) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrders) ListOrders(_ context.Context, f repository.OrderFilter) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockOrders) AttachPaymentIntent(_ context.Context, id uuid.UUID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.PaymentIntentID != "" && o.PaymentIntentID != intentID {
		return repository.ErrIntentAlreadyAttached
	}
	o.PaymentIntentID = intentID
	return nil
}

func (m *MockOrders) ApplyStatusChange(_ context.Context, c repository.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[c.OrderID]
	if !ok || o.Status != c.From {
		return false, nil
	}
	o.Status = c.To
	if c.FailureReason != "" {
		o.FailureReason = c.FailureReason
	}
	if c.Tracking != nil {
		o.Tracking = *c.Tracking
	}
	if c.Event != nil {
		m.enqueueLocked(*c.Event)
	}
	return true, nil
}

func (m *MockOrders) EnqueueNotification(_ context.Context, ev domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enqueueLocked(ev) {
		return repository.ErrDuplicateNotification
	}
	return nil
}

func (m *MockOrders) enqueueLocked(ev domain.OrderEvent) bool {
	key := ev.OrderID.String() + "/" + string(ev.Kind)
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	m.events = append(m.events, ev)
	return true
}

func (m *MockOrders) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockOrders) eventsOf(kind domain.NotificationKind) []domain.OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderEvent
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type failingQueue struct{ err error }

func (q failingQueue) EnqueueNotification(context.Context, domain.OrderEvent) error { return q.err }

// MockProducts is a catalog keyed by product id.
type MockProducts map[string]*domain.Product

func (m MockProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func testCatalog() MockProducts {
	return MockProducts{
		"tshirt-logo":  {ID: "tshirt-logo", Name: "T-shirt Logo", Price: 2499, Currency: "usd"},
		"hoodie-zip":   {ID: "hoodie-zip", Name: "Zip Hoodie", Price: 5499, Currency: "usd"},
		"cap-baseball": {ID: "cap-baseball", Name: "Baseball Cap", Price: 1999, Currency: "usd"},
		"mug-eur":      {ID: "mug-eur", Name: "Mug", Price: 1200, Currency: "eur"},
	}
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	args := m.Called(ctx, req)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

func (m *MockGateway) GetPaymentIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

// MockVerifier accepts only the signature "valid" and returns Event.
type MockVerifier struct {
	Event *payment.Event
}

func (m *MockVerifier) VerifyWebhook(_ []byte, signature string) (*payment.Event, error) {
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	ev := *m.Event
	return &ev, nil
}

type mockCartRepo struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	saves int
	err   error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartRepo) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	m.carts[cart.UserID] = &cp
	m.saves++
	return nil
}

func (m *mockCartRepo) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[userID]; !ok {
		return cartstore.ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

type mockCache struct {
	mu      sync.RWMutex
	carts   map[string]*domain.Cart
	deletes int
	err     error
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = cart
	return m.err
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.deletes++
	return m.err
}

func (m *mockCache) has(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

type mockWishlistRepo struct {
	lists map[string]*domain.Wishlist
	saves int
}

func (m *mockWishlistRepo) GetWishlist(_ context.Context, userID string) (*domain.Wishlist, error) {
	w, ok := m.lists[userID]
	if !ok {
		return nil, cartstore.ErrWishlistNotFound
	}
	cp := *w
	cp.Items = append([]domain.WishlistItem(nil), w.Items...)
	return &cp, nil
}

func (m *mockWishlistRepo) SaveWishlist(_ context.Context, w *domain.Wishlist) error {
	if m.lists == nil {
		m.lists = make(map[string]*domain.Wishlist)
	}
	cp := *w
	m.lists[w.UserID] = &cp
	m.saves++
	return nil
}

type mockDispatcher struct {
	sent []domain.Notification
}

func (m *mockDispatcher) Dispatch(_ context.Context, n domain.Notification) notify.Result {
	m.sent = append(m.sent, n)
	return notify.Result{Success: true, MessageID: "msg-1"}
}
