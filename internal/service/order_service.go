package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderStore is the read side of orders plus fulfillment transitions.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error)
	GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error)
	GetOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
	TransitionOrderStatus(ctx context.Context, c store.StatusChange) (*models.Order, error)
}

// allowedTransitions lists the manual fulfillment moves. PAID and
// PAYMENT_FAILED are only ever set by reconciliation.
var allowedTransitions = map[string]map[string]bool{
	models.OrderStatusPending: {
		models.OrderStatusCancelled: true,
	},
	models.OrderStatusPaymentFailed: {
		models.OrderStatusCancelled: true,
	},
	models.OrderStatusPaid: {
		models.OrderStatusProcessing: true,
		models.OrderStatusShipped:    true,
		models.OrderStatusCancelled:  true,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusShipped:   true,
		models.OrderStatusCancelled: true,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered: true,
	},
}

var carrierTrackingURLs = map[string]string{
	"usps":     "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s",
	"ups":      "https://www.ups.com/track?tracknum=%s",
	"fedex":    "https://www.fedex.com/apps/fedextrack/?tracknumbers=%s",
	"dhl":      "https://www.dhl.com/en/express/tracking.html?AWB=%s",
	"correios": "https://rastreamento.correios.com.br/app/index.php",
}

// TrackingURL returns the carrier's tracking page for code.
func TrackingURL(carrier, code string) (string, error) {
	pattern, ok := carrierTrackingURLs[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCarrier, carrier)
	}
	if !strings.Contains(pattern, "%s") {
		return pattern, nil
	}
	return fmt.Sprintf(pattern, code), nil
}

// CanTransition reports whether a fulfillment move from one status to another is allowed.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// CustomerOrders is a shopper's order history.
type CustomerOrders struct {
	Orders       []models.Order `json:"orders"`
	StatusCounts map[string]int `json:"status_counts"`
}

// UpdateStatusRequest represents a fulfillment status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// AddTrackingRequest represents a shipment notification
type AddTrackingRequest struct {
	Carrier string `json:"carrier" binding:"required"`
	Code    string `json:"tracking_code" binding:"required"`
}

// OrderService handles order history and fulfillment
type OrderService struct {
	store  OrderStore
	events OrderEventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, events OrderEventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// ListCustomerOrders returns every order placed with the shopper's email,
// newest first, with items attached.
func (s *OrderService) ListCustomerOrders(ctx context.Context, id auth.Identity) (*CustomerOrders, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListCustomerOrders")
	defer span.End()

	if !id.Authenticated() || id.Email == "" {
		return nil, ErrSignInRequired
	}

	orders, err := s.store.GetOrdersByEmail(ctx, id.Email)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := s.store.GetOrderItemsByOrderIDs(ctx, ids)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	counts := make(map[string]int)
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		orders[i].CheckoutState = models.DeriveCheckoutState(&orders[i])
		counts[orders[i].Status]++
	}

	return &CustomerOrders{Orders: orders, StatusCounts: counts}, nil
}

// GetCustomerOrder returns one of the shopper's orders with items and status
// history. Orders belonging to someone else are reported as not found.
func (s *OrderService) GetCustomerOrder(ctx context.Context, id auth.Identity, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetCustomerOrder", attribute.String("order.id", orderID))
	defer span.End()

	if !id.Authenticated() || id.Email == "" {
		return nil, ErrSignInRequired
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(order.CustomerEmail, id.Email) {
		return nil, ErrOrderNotFound
	}

	items, err := s.store.GetOrderItemsByOrderIDs(ctx, []string{order.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items[order.ID]

	history, err := s.store.GetOrderHistory(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	order.History = history
	order.CheckoutState = models.DeriveCheckoutState(order)

	return order, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if !isUUID(orderID) {
		return nil, ErrOrderNotFound
	}
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateStatus moves an order along the fulfillment flow.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, req UpdateStatusRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.status", req.Status))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	to := strings.ToUpper(strings.TrimSpace(req.Status))
	if !CanTransition(order.Status, to) {
		s.logger.Warn("Invalid status transition attempt",
			zap.String("order_id", orderID),
			zap.String("current_status", order.Status),
			zap.String("new_status", to))
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, to)
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = "Status changed to " + to
	}
	return s.transition(ctx, store.StatusChange{
		OrderID:    orderID,
		FromStatus: order.Status,
		ToStatus:   to,
		Notes:      notes,
	})
}

// AddTracking records a shipment and marks the order SHIPPED. An order that
// is already shipped gets its tracking details replaced.
func (s *OrderService) AddTracking(ctx context.Context, orderID string, req AddTrackingRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddTracking", attribute.String("order.id", orderID))
	defer span.End()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, newValidationError("tracking_code", "is required")
	}
	trackingURL, err := TrackingURL(req.Carrier, code)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusShipped && !CanTransition(order.Status, models.OrderStatusShipped) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, models.OrderStatusShipped)
	}

	return s.transition(ctx, store.StatusChange{
		OrderID:      orderID,
		FromStatus:   order.Status,
		ToStatus:     models.OrderStatusShipped,
		Notes:        "Tracking code: " + code,
		TrackingCode: &code,
		TrackingURL:  &trackingURL,
	})
}

func (s *OrderService) transition(ctx context.Context, c store.StatusChange) (*models.Order, error) {
	updated, err := s.store.TransitionOrderStatus(ctx, c)
	if errors.Is(err, store.ErrStaleStatus) {
		return nil, fmt.Errorf("%w: order changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", c.OrderID),
		zap.String("from", c.FromStatus),
		zap.String("to", c.ToStatus))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:    c.OrderID,
			FromStatus: c.FromStatus,
			ToStatus:   c.ToStatus,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}
	return updated, nil
}
