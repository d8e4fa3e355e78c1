package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckoutStore struct {
	orders     map[string]*models.Order
	items      []models.OrderItem
	deleted    []string
	sessions   map[string]string
	itemsErr   error
	sessionErr error
}

func newFakeCheckoutStore() *fakeCheckoutStore {
	return &fakeCheckoutStore{orders: map[string]*models.Order{}, sessions: map[string]string{}}
}

func (f *fakeCheckoutStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.orders[order.ID] = order
	return nil
}

func (f *fakeCheckoutStore) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if f.itemsErr != nil {
		return f.itemsErr
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeCheckoutStore) DeleteOrder(ctx context.Context, orderID string) error {
	delete(f.orders, orderID)
	f.deleted = append(f.deleted, orderID)
	return nil
}

func (f *fakeCheckoutStore) SetCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	if f.sessionErr != nil {
		return f.sessionErr
	}
	f.sessions[orderID] = sessionID
	return nil
}

type fakeCartLoader struct {
	carts map[string]*cart.Cart
}

func (f *fakeCartLoader) Load(ctx context.Context, userID string) (*cart.Cart, error) {
	if c, ok := f.carts[userID]; ok {
		return c, nil
	}
	return cart.New(), nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.held[key] {
		return "", nil
	}
	f.held[key] = true
	return "token-" + key, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

type fakeGateway struct {
	requests []SessionRequest
	err      error
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type fakePublisher struct {
	created       []*models.OrderCreatedEvent
	paid          []*models.OrderPaidEvent
	paymentFailed []*models.OrderPaymentFailedEvent
	statusChanged []*models.OrderStatusChangedEvent
}

func (f *fakePublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	f.created = append(f.created, e)
	return nil
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, e *models.OrderPaidEvent) error {
	f.paid = append(f.paid, e)
	return nil
}

func (f *fakePublisher) PublishOrderPaymentFailed(ctx context.Context, e *models.OrderPaymentFailedEvent) error {
	f.paymentFailed = append(f.paymentFailed, e)
	return nil
}

func (f *fakePublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	f.statusChanged = append(f.statusChanged, e)
	return nil
}

type checkoutFixture struct {
	svc     *CheckoutService
	store   *fakeCheckoutStore
	carts   *fakeCartLoader
	locker  *fakeLocker
	gateway *fakeGateway
	events  *fakePublisher
}

var shopper = auth.Identity{UserID: "user-1", Email: "ana@example.com"}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	c := cart.New()
	c.AddItem(cart.Item{ID: "p1-M", ProductID: "p1", Name: "Banner (M)", Price: decimal.RequireFromString("49.99")}, 2)
	c.AddItem(cart.Item{ID: "p2", ProductID: "p2", Name: "Sticker", Price: decimal.RequireFromString("20.00"), ImageURL: "https://cdn.example.com/s.png"}, 1)

	f := &checkoutFixture{
		store:   newFakeCheckoutStore(),
		carts:   &fakeCartLoader{carts: map[string]*cart.Cart{"user-1": c}},
		locker:  newFakeLocker(),
		gateway: &fakeGateway{},
		events:  &fakePublisher{},
	}
	f.svc = NewCheckoutService(f.store, f.carts, f.locker, f.gateway, f.events, CheckoutConfig{
		PublishableKey: "pk_test_1",
		Currency:       "usd",
		TaxRate:        decimal.RequireFromString("0.08"),
		SuccessURL:     "https://shop.example.com/orders/{ORDER_ID}?paid=1",
		CancelURL:      "https://shop.example.com/checkout?order={ORDER_ID}",
		LockTimeout:    30 * time.Second,
	})
	return f
}

func validCheckoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		CustomerName:  "Ana Souza",
		CustomerPhone: "+1 555 0100",
		ShippingAddress: models.ShippingAddress{
			Street:       "Main Street",
			Number:       "42",
			Neighborhood: "Downtown",
			City:         "Springfield",
			State:        "IL",
			ZipCode:      "62701",
		},
		PaymentMethod: models.PaymentMethodCreditCard,
	}
}

func TestNewQuote(t *testing.T) {
	c := cart.New()
	c.AddItem(cart.Item{ID: "a", Price: decimal.RequireFromString("49.99")}, 2)
	c.AddItem(cart.Item{ID: "b", Price: decimal.RequireFromString("20.00")}, 1)

	q := NewQuote(c, decimal.RequireFromString("0.08"))
	assert.Equal(t, "119.98", q.Subtotal.StringFixed(2))
	assert.Equal(t, "9.60", q.Tax.StringFixed(2))
	assert.Equal(t, "129.58", q.Total.StringFixed(2))
	assert.True(t, q.Shipping.IsZero())
	assert.Equal(t, 3, q.ItemCount)
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newCheckoutFixture(t)

	res, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
	require.NoError(t, err)

	assert.Equal(t, models.CheckoutPaymentPending, res.State)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", res.RedirectURL)

	order, ok := f.store.orders[res.OrderID]
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "ana@example.com", order.CustomerEmail)
	assert.Equal(t, "129.58", order.Total.StringFixed(2))
	assert.Len(t, f.store.items, 2)
	assert.Equal(t, "cs_test_1", f.store.sessions[res.OrderID])

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, res.OrderID, req.OrderID)
	assert.Equal(t, models.PaymentMethodCreditCard, req.PaymentMethod)
	assert.Equal(t, "https://shop.example.com/orders/"+res.OrderID+"?paid=1", req.SuccessURL)
	assert.Equal(t, "https://shop.example.com/checkout?order="+res.OrderID, req.CancelURL)

	var charged int64
	for _, line := range req.Lines {
		charged += line.UnitAmount * line.Quantity
	}
	assert.Equal(t, ToMinorUnits(res.Quote.Total), charged)
	assert.Equal(t, SalesTaxLine, req.Lines[len(req.Lines)-1].Name)

	require.Len(t, f.events.created, 1)
	assert.Equal(t, res.OrderID, f.events.created[0].OrderID)
	assert.Equal(t, []string{"checkout:user-1"}, f.locker.released)
}

func TestPlaceOrder_NoTaxLineWhenRateIsZero(t *testing.T) {
	f := newCheckoutFixture(t)
	f.svc.cfg.TaxRate = decimal.Zero

	_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
	require.NoError(t, err)
	for _, line := range f.gateway.requests[0].Lines {
		assert.NotEqual(t, SalesTaxLine, line.Name)
	}
}

func TestPlaceOrder_ValidationFields(t *testing.T) {
	f := newCheckoutFixture(t)
	req := validCheckoutRequest()
	req.CustomerName = "A"
	req.ShippingAddress.Street = "abc"
	req.ShippingAddress.ZipCode = ""
	req.PaymentMethod = "bitcoin"

	_, err := f.svc.PlaceOrder(context.Background(), shopper, req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be at least 2 characters", verr.Fields["customer_name"])
	assert.Equal(t, "must be at least 5 characters", verr.Fields["shipping_address.street"])
	assert.Equal(t, "is required", verr.Fields["shipping_address.zip_code"])
	assert.Contains(t, verr.Fields, "payment_method")
	assert.Empty(t, f.store.orders)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.svc.PlaceOrder(context.Background(), auth.Identity{}, validCheckoutRequest())
		assert.ErrorIs(t, err, ErrSignInRequired)
	})

	t.Run("payments disabled", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.svc.cfg.PublishableKey = ""
		_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
		assert.ErrorIs(t, err, ErrPaymentUnavailable)
		assert.False(t, f.svc.PaymentConfig().Available)
	})

	t.Run("already in progress", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.locker.held["checkout:user-1"] = true
		_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
		assert.ErrorIs(t, err, ErrCheckoutInProgress)
		assert.Empty(t, f.store.orders)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.carts.carts = map[string]*cart.Cart{}
		_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
		assert.ErrorIs(t, err, ErrEmptyCart)
		assert.Empty(t, f.gateway.requests)
	})
}

func TestPlaceOrder_ItemFailureDeletesOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.store.itemsErr = errors.New("connection reset")

	_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
	require.Error(t, err)

	assert.Empty(t, f.store.orders)
	assert.Len(t, f.store.deleted, 1)
	assert.Empty(t, f.gateway.requests)
	assert.Empty(t, f.events.created)
}

func TestPlaceOrder_ProviderFailureLeavesOrderPending(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.err = errors.Join(ErrPaymentProvider, errors.New("card declined"))

	_, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
	assert.ErrorIs(t, err, ErrPaymentProvider)

	require.Len(t, f.store.orders, 1)
	for _, order := range f.store.orders {
		assert.Equal(t, models.OrderStatusPending, order.Status)
	}
	assert.Empty(t, f.store.sessions)
	assert.Empty(t, f.store.deleted)
}

func TestPlaceOrder_SessionRecordFailureStillSucceeds(t *testing.T) {
	f := newCheckoutFixture(t)
	f.store.sessionErr = errors.New("timeout")

	res, err := f.svc.PlaceOrder(context.Background(), shopper, validCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
}
