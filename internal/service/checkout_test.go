package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = Principal{UserID: "user-1", Email: "ada@example.com"}
	bob   = Principal{UserID: "user-2", Email: "bob@example.com"}
	admin = Principal{UserID: "admin-1", Email: "ops@example.com", Role: RoleAdmin}
)

func validShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address:    "12 St James's Sq",
		City:       "London",
		PostalCode: "SW1Y 4JH",
		Country:    "GB",
	}
}

func exampleLines() []LineRequest {
	return []LineRequest{
		{ProductID: "tshirt-logo", Quantity: 2},
		{ProductID: "cap-baseball", Quantity: 1},
	}
}

func TestPriceResolver_ExampleScenario(t *testing.T) {
	priced, err := NewPriceResolver(testCatalog()).Resolve(context.Background(), exampleLines())
	require.NoError(t, err)

	assert.Equal(t, int64(6997), priced.Total)
	assert.Equal(t, "usd", priced.Currency)
	require.Len(t, priced.Items, 2)
	assert.Equal(t, domain.OrderItem{ProductID: "tshirt-logo", ProductName: "T-shirt Logo", Quantity: 2, UnitPriceAtPurchase: 2499}, priced.Items[0])
	assert.Equal(t, int64(1999), priced.Items[1].UnitPriceAtPurchase)
}

func TestPriceResolver_MergesDuplicateLines(t *testing.T) {
	priced, err := NewPriceResolver(testCatalog()).Resolve(context.Background(), []LineRequest{
		{ProductID: "hoodie-zip", Quantity: 1},
		{ProductID: "hoodie-zip", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, priced.Items, 1)
	assert.Equal(t, 3, priced.Items[0].Quantity)
	assert.Equal(t, int64(3*5499), priced.Total)
}

func TestPriceResolver_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		lines []LineRequest
		want  error
	}{
		{"empty", nil, ErrEmptyCart},
		{"zero quantity", []LineRequest{{ProductID: "tshirt-logo", Quantity: 0}}, ErrInvalidQuantity},
		{"too many", []LineRequest{{ProductID: "tshirt-logo", Quantity: 100}}, ErrInvalidQuantity},
		{"merged too many", []LineRequest{{ProductID: "tshirt-logo", Quantity: 60}, {ProductID: "tshirt-logo", Quantity: 40}}, ErrInvalidQuantity},
		{"unknown product", []LineRequest{{ProductID: "nope", Quantity: 1}}, ErrProductNotFound},
		{"mixed currency", []LineRequest{{ProductID: "tshirt-logo", Quantity: 1}, {ProductID: "mug-eur", Quantity: 1}}, ErrCurrencyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceResolver(testCatalog()).Resolve(context.Background(), tt.lines)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func newIntake(orders *MockOrders) *OrderIntake {
	return NewOrderIntake(orders, orders, NewPriceResolver(testCatalog()))
}

func TestOrderIntake_CreatesPendingOrder(t *testing.T) {
	orders := newMockOrders()

	order, err := newIntake(orders).CreateOrder(context.Background(), alice, OrderRequest{
		Items:    exampleLines(),
		Shipping: validShipping(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(6997), order.TotalAmount)
	assert.Equal(t, "ada@example.com", order.CustomerEmail)
	assert.Equal(t, "Ada Lovelace", order.CustomerName)

	stored, err := orders.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)

	confirmations := orders.eventsOf(domain.KindOrderConfirmation)
	require.Len(t, confirmations, 1)
	assert.Equal(t, order.ID, confirmations[0].OrderID)
}

func TestOrderIntake_FailuresPersistNothing(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		req  OrderRequest
		want error
	}{
		{"unauthenticated", Principal{}, OrderRequest{Items: exampleLines(), Shipping: validShipping()}, ErrUnauthorized},
		{"empty cart", alice, OrderRequest{Shipping: validShipping()}, ErrEmptyCart},
		{"missing product", alice, OrderRequest{Items: []LineRequest{{ProductID: "ghost", Quantity: 1}}, Shipping: validShipping()}, ErrProductNotFound},
		{"missing shipping", alice, OrderRequest{Items: exampleLines(), Shipping: domain.ShippingInfo{FirstName: "Ada"}}, ErrInvalidShipping},
		{"no email", Principal{UserID: "u"}, OrderRequest{Items: exampleLines(), Shipping: validShipping()}, ErrMissingEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newMockOrders()
			_, err := newIntake(orders).CreateOrder(context.Background(), tt.p, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, orders.count())
			assert.Empty(t, orders.eventsOf(domain.KindOrderConfirmation))
		})
	}
}

func TestOrderIntake_ProductNotFoundNamesProduct(t *testing.T) {
	_, err := newIntake(newMockOrders()).CreateOrder(context.Background(), alice, OrderRequest{
		Items:    []LineRequest{{ProductID: "tshirt-logo", Quantity: 1}, {ProductID: "ghost", Quantity: 1}},
		Shipping: validShipping(),
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "ghost", pnf.ProductID)
}

func TestOrderIntake_EnqueueFailureKeepsOrder(t *testing.T) {
	orders := newMockOrders()
	intake := NewOrderIntake(orders, failingQueue{err: errors.New("db down")}, NewPriceResolver(testCatalog()))

	order, err := intake.CreateOrder(context.Background(), alice, OrderRequest{Items: exampleLines(), Shipping: validShipping()})
	require.NoError(t, err)
	assert.Equal(t, 1, orders.count())
	assert.NotNil(t, order)
}

func newCheckout(orders *MockOrders, gw *MockGateway, carts CartReader) *CheckoutService {
	return NewCheckoutService(newIntake(orders), orders, gw, carts)
}

func TestCheckout_CreatesIntentForNewOrder(t *testing.T) {
	orders := newMockOrders()
	gw := &MockGateway{}
	gw.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(req payment.IntentRequest) bool {
		return req.Amount == 6997 && req.Currency == "usd" && req.UserID == "user-1" && req.CustomerEmail == "ada@example.com"
	})).Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret_x", Amount: 6997, Currency: "usd"}, nil).Once()

	res, err := newCheckout(orders, gw, nil).CreatePaymentIntent(context.Background(), alice, CheckoutRequest{
		Items:    exampleLines(),
		Shipping: validShipping(),
	})
	require.NoError(t, err)
	gw.AssertExpectations(t)

	assert.Equal(t, "pi_1_secret_x", res.ClientSecret)
	assert.Equal(t, int64(6997), res.Amount)

	stored, err := orders.GetOrderByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", stored.PaymentIntentID)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestCheckout_ProcessorFailureIsRetryableWithSameOrder(t *testing.T) {
	orders := newMockOrders()
	gw := &MockGateway{}
	gw.On("CreatePaymentIntent", mock.Anything, mock.Anything).
		Return(nil, errors.New("stripe: 503")).Once()

	svc := newCheckout(orders, gw, nil)
	_, err := svc.CreatePaymentIntent(context.Background(), alice, CheckoutRequest{Items: exampleLines(), Shipping: validShipping()})
	require.ErrorIs(t, err, ErrPaymentIntentCreationFailed)
	assert.True(t, IsRetryable(err))

	var pie *PaymentIntentError
	require.ErrorAs(t, err, &pie)
	stored, err := orders.GetOrderByID(context.Background(), pie.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)

	gw.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(req payment.IntentRequest) bool {
		return req.OrderID == pie.OrderID
	})).Return(&payment.Intent{ID: "pi_2", ClientSecret: "pi_2_secret"}, nil).Once()

	res, err := svc.CreatePaymentIntent(context.Background(), alice, CheckoutRequest{OrderID: &pie.OrderID})
	require.NoError(t, err)
	assert.Equal(t, pie.OrderID, res.OrderID)
	assert.Equal(t, 1, orders.count())
	gw.AssertExpectations(t)
}

func TestCheckout_RetryReusesAttachedIntent(t *testing.T) {
	orders := newMockOrders()
	id := uuid.New()
	orders.put(&domain.Order{ID: id, UserID: "user-1", TotalAmount: 6997, Currency: "usd",
		Status: domain.OrderStatusPending, PaymentIntentID: "pi_9"})

	gw := &MockGateway{}
	gw.On("GetPaymentIntent", mock.Anything, "pi_9").
		Return(&payment.Intent{ID: "pi_9", ClientSecret: "pi_9_secret"}, nil).Once()

	res, err := newCheckout(orders, gw, nil).CreatePaymentIntent(context.Background(), alice, CheckoutRequest{OrderID: &id})
	require.NoError(t, err)
	assert.Equal(t, "pi_9_secret", res.ClientSecret)
	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
}

func TestCheckout_RetryRejectsForeignOrSettledOrder(t *testing.T) {
	orders := newMockOrders()
	paid := uuid.New()
	orders.put(&domain.Order{ID: paid, UserID: "user-1", Status: domain.OrderStatusPaid})

	svc := newCheckout(orders, &MockGateway{}, nil)

	_, err := svc.CreatePaymentIntent(context.Background(), bob, CheckoutRequest{OrderID: &paid})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.CreatePaymentIntent(context.Background(), alice, CheckoutRequest{OrderID: &paid})
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestCheckout_FallsBackToServerCart(t *testing.T) {
	orders := newMockOrders()
	repo := newMockCartRepo()
	cart := domain.NewCart("user-1")
	cart.Add(domain.CartItem{ProductID: "tshirt-logo", UnitPrice: 1}, 2)
	cart.Add(domain.CartItem{ProductID: "cap-baseball", UnitPrice: 1}, 1)
	require.NoError(t, repo.SaveCart(context.Background(), cart))

	gw := &MockGateway{}
	gw.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(req payment.IntentRequest) bool {
		// prices come from the catalog, not the cart snapshot
		return req.Amount == 6997
	})).Return(&payment.Intent{ID: "pi_3", ClientSecret: "s"}, nil).Once()

	_, err := newCheckout(orders, gw, repo).CreatePaymentIntent(context.Background(), alice, CheckoutRequest{Shipping: validShipping()})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestCheckout_MissingServerCartIsEmpty(t *testing.T) {
	_, err := newCheckout(newMockOrders(), &MockGateway{}, newMockCartRepo()).
		CreatePaymentIntent(context.Background(), alice, CheckoutRequest{Shipping: validShipping()})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_Unauthenticated(t *testing.T) {
	_, err := newCheckout(newMockOrders(), &MockGateway{}, nil).
		CreatePaymentIntent(context.Background(), Principal{}, CheckoutRequest{Items: exampleLines(), Shipping: validShipping()})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
