package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderPaymentFailed = "ORDER_PAYMENT_FAILED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// Payment processor event types handled by reconciliation
const (
	PaymentEventSessionCompleted       = "checkout.session.completed"
	PaymentEventSessionExpired         = "checkout.session.expired"
	PaymentEventPaymentIntentSucceeded = "payment_intent.succeeded"
	PaymentEventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// CheckoutState is where a checkout attempt currently stands. Collecting
// input and submitting happen in the client before any of these.
type CheckoutState string

const (
	CheckoutOrderCreated     CheckoutState = "order-created"
	CheckoutPaymentPending   CheckoutState = "payment-pending"
	CheckoutPaymentConfirmed CheckoutState = "payment-confirmed"
	CheckoutPaymentFailed    CheckoutState = "payment-failed"
)

// DeriveCheckoutState reads the checkout state off a stored order. Orders
// that left the payment flow without paying have none.
func DeriveCheckoutState(o *Order) CheckoutState {
	switch {
	case o.PaymentStatus == PaymentStatusCompleted || o.PaymentStatus == PaymentStatusRefunded:
		return CheckoutPaymentConfirmed
	case o.PaymentStatus == PaymentStatusFailed || o.Status == OrderStatusPaymentFailed:
		return CheckoutPaymentFailed
	case o.Status != OrderStatusPending:
		return ""
	case o.StripeSessionID != nil:
		return CheckoutPaymentPending
	default:
		return CheckoutOrderCreated
	}
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when checkout persists a new order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItemData `json:"items"`
}

// OrderPaidEvent published when the processor confirms payment
type OrderPaidEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	CustomerID      string `json:"customer_id,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	SourceEventID   string `json:"source_event_id"`
}

// OrderPaymentFailedEvent published when a session expires or the payment fails
type OrderPaymentFailedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	Reason        string `json:"reason"`
	SourceEventID string `json:"source_event_id"`
}

// OrderStatusChangedEvent published on fulfillment transitions
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PaymentEvent is a verified processor notification reduced to what
// reconciliation needs.
type PaymentEvent struct {
	ID              string
	Type            string
	OrderID         string
	SessionID       string
	PaymentIntentID string
	CustomerEmail   string
	AmountTotal     int64
}
