package worker

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const clearedKeyTTL = 7 * 24 * time.Hour

// MessageSource is the consuming side of the order topic.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CartClearer empties a shopper's cart.
type CartClearer interface {
	ClearForCustomer(ctx context.Context, userID string) error
}

// IdempotencyStore remembers which orders already had their cart cleared.
type IdempotencyStore interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CartWorker clears a shopper's cart once their order is paid. A failed
// payment leaves the cart alone so checkout can be retried.
type CartWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	carts        CartClearer
	keys         IdempotencyStore
	logger       *zap.Logger
}

// NewCartWorker creates a new cart worker
func NewCartWorker(source MessageSource, carts CartClearer, keys IdempotencyStore) *CartWorker {
	w := &CartWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		carts:        carts,
		keys:         keys,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderPaid(w.HandleOrderPaid)
	w.eventHandler.OnOrderPaymentFailed(w.HandleOrderPaymentFailed)
	return w
}

// Start starts the worker
func (w *CartWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cart worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CartWorker) Stop() error {
	w.logger.Info("Stopping cart worker")
	return w.source.Close()
}

func clearedKey(orderID string) string {
	return "cart-cleared:" + orderID
}

// HandleOrderPaid clears the paying shopper's cart at most once per order.
func (w *CartWorker) HandleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "CartWorker.HandleOrderPaid")
	defer span.End()

	if event.CustomerID == "" {
		return nil
	}

	key := clearedKey(event.OrderID)
	done, err := w.keys.CheckIdempotencyKey(ctx, key)
	if err != nil {
		util.SpanError(span, err)
		return err
	}
	if done {
		w.logger.Debug("Cart already cleared for order", zap.String("order_id", event.OrderID))
		return nil
	}

	if err := w.carts.ClearForCustomer(ctx, event.CustomerID); err != nil {
		util.SpanError(span, err)
		w.logger.Error("Failed to clear cart",
			zap.String("order_id", event.OrderID),
			zap.String("customer_id", event.CustomerID),
			zap.Error(err))
		return err
	}

	if _, err := w.keys.SetIdempotencyKey(ctx, key, clearedKeyTTL); err != nil {
		w.logger.Warn("Failed to record cart clear", zap.String("order_id", event.OrderID), zap.Error(err))
	}
	return nil
}

func (w *CartWorker) HandleOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error {
	w.logger.Info("Payment failed, keeping cart",
		zap.String("order_id", event.OrderID),
		zap.String("reason", event.Reason))
	return nil
}
