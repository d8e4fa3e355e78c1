package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciliationStore struct {
	orders    map[string]*models.Order
	processed map[string]bool
	updates   []store.PaymentUpdate
}

func newFakeReconciliationStore(orderIDs ...string) *fakeReconciliationStore {
	f := &fakeReconciliationStore{orders: map[string]*models.Order{}, processed: map[string]bool{}}
	for _, id := range orderIDs {
		customer := "user-1"
		f.orders[id] = &models.Order{
			ID:            id,
			CustomerID:    &customer,
			Status:        models.OrderStatusPending,
			PaymentStatus: models.PaymentStatusPending,
		}
	}
	return f
}

func (f *fakeReconciliationStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeReconciliationStore) ApplyPaymentUpdate(ctx context.Context, u store.PaymentUpdate) (bool, *models.Order, error) {
	if f.processed[u.EventID] {
		return false, nil, nil
	}
	order, ok := f.orders[u.OrderID]
	if !ok {
		return false, nil, store.ErrNotFound
	}
	f.processed[u.EventID] = true
	f.updates = append(f.updates, u)
	order.Status = u.Status
	order.PaymentStatus = u.PaymentStatus
	if u.PaymentIntentID != nil {
		order.StripePaymentIntentID = u.PaymentIntentID
	}
	if u.PaidAt != nil {
		order.PaidAt = u.PaidAt
	}
	return true, order, nil
}

func newReconciliationFixture(orderIDs ...string) (*ReconciliationService, *fakeReconciliationStore, *fakePublisher) {
	st := newFakeReconciliationStore(orderIDs...)
	pub := &fakePublisher{}
	svc := NewReconciliationService(st, pub)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st, pub
}

func TestHandleEvent_SessionCompletedMarksPaid(t *testing.T) {
	svc, st, pub := newReconciliationFixture("order-42")

	outcome, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{
		ID:              "evt_1",
		Type:            models.PaymentEventSessionCompleted,
		OrderID:         "order-42",
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	order := st.orders["order-42"]
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, "pi_1", *order.StripePaymentIntentID)

	require.Len(t, pub.paid, 1)
	assert.Equal(t, "order-42", pub.paid[0].OrderID)
	assert.Equal(t, "user-1", pub.paid[0].CustomerID)
	assert.Equal(t, "evt_1", pub.paid[0].SourceEventID)
}

func TestHandleEvent_RedeliveryIsNoop(t *testing.T) {
	svc, st, pub := newReconciliationFixture("order-42")
	evt := &models.PaymentEvent{ID: "evt_1", Type: models.PaymentEventSessionCompleted, OrderID: "order-42"}

	_, err := svc.HandleEvent(context.Background(), evt)
	require.NoError(t, err)

	outcome, err := svc.HandleEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, st.updates, 1)
	assert.Len(t, pub.paid, 1)
}

func TestHandleEvent_FailureTypes(t *testing.T) {
	for _, typ := range []string{models.PaymentEventSessionExpired, models.PaymentEventPaymentIntentFailed} {
		t.Run(typ, func(t *testing.T) {
			svc, st, pub := newReconciliationFixture("order-7")

			outcome, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{ID: "evt_" + typ, Type: typ, OrderID: "order-7"})
			require.NoError(t, err)
			assert.Equal(t, OutcomeApplied, outcome)
			assert.Equal(t, models.OrderStatusPaymentFailed, st.orders["order-7"].Status)
			assert.Equal(t, models.PaymentStatusFailed, st.orders["order-7"].PaymentStatus)
			assert.Nil(t, st.orders["order-7"].PaidAt)
			assert.Len(t, pub.paymentFailed, 1)
		})
	}
}

func TestHandleEvent_MissingOrderID(t *testing.T) {
	svc, st, _ := newReconciliationFixture()

	_, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{ID: "evt_1", Type: models.PaymentEventSessionCompleted})
	assert.ErrorIs(t, err, ErrMissingOrderID)

	outcome, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{ID: "evt_2", Type: models.PaymentEventPaymentIntentSucceeded})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, st.updates)
}

func TestHandleEvent_UnknownOrder(t *testing.T) {
	svc, _, pub := newReconciliationFixture()

	_, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{ID: "evt_1", Type: models.PaymentEventSessionCompleted, OrderID: "missing"})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Empty(t, pub.paid)
}

func TestHandleEvent_UnhandledType(t *testing.T) {
	svc, st, _ := newReconciliationFixture("order-1")

	outcome, err := svc.HandleEvent(context.Background(), &models.PaymentEvent{ID: "evt_9", Type: "customer.created"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, st.updates)
}
