package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReconciliationStore applies processor events to orders.
type ReconciliationStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	ApplyPaymentUpdate(ctx context.Context, u store.PaymentUpdate) (bool, *models.Order, error)
}

// Outcome of handling one webhook event
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// ReconciliationService moves orders forward from payment processor events.
type ReconciliationService struct {
	store  ReconciliationStore
	events OrderEventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(store ReconciliationStore, events OrderEventPublisher) *ReconciliationService {
	return &ReconciliationService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// HandleEvent applies one verified event. A checkout.session.completed event
// without an order id fails with ErrMissingOrderID before any database access;
// the other handled types without an order id are ignored.
func (s *ReconciliationService) HandleEvent(ctx context.Context, evt *models.PaymentEvent) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "ReconciliationService.HandleEvent",
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", evt.Type))
	defer span.End()

	outcome, err := s.handle(ctx, evt)
	label := string(outcome)
	if err != nil {
		label = "error"
		util.SpanError(span, err)
	}
	util.WebhookEventsTotal.WithLabelValues(evt.Type, label).Inc()
	return outcome, err
}

func (s *ReconciliationService) handle(ctx context.Context, evt *models.PaymentEvent) (Outcome, error) {
	var update store.PaymentUpdate

	switch evt.Type {
	case models.PaymentEventSessionCompleted:
		if evt.OrderID == "" {
			s.logger.Error("Checkout session completed without order_id",
				zap.String("event_id", evt.ID),
				zap.String("session_id", evt.SessionID))
			return "", ErrMissingOrderID
		}
		update = s.paidUpdate(evt, "Payment confirmed via checkout session")

	case models.PaymentEventPaymentIntentSucceeded:
		if evt.OrderID == "" {
			return s.ignore(evt, "no order_id"), nil
		}
		update = s.paidUpdate(evt, "Payment confirmed via payment intent")

	case models.PaymentEventSessionExpired:
		if evt.OrderID == "" {
			return s.ignore(evt, "no order_id"), nil
		}
		update = s.failedUpdate(evt, "Checkout session expired")

	case models.PaymentEventPaymentIntentFailed:
		if evt.OrderID == "" {
			return s.ignore(evt, "no order_id"), nil
		}
		update = s.failedUpdate(evt, "Payment failed")

	default:
		return s.ignore(evt, "unhandled type"), nil
	}

	processed, err := s.store.IsEventProcessed(ctx, evt.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		s.logger.Info("Duplicate webhook event", zap.String("event_id", evt.ID))
		return OutcomeDuplicate, nil
	}

	applied, order, err := s.store.ApplyPaymentUpdate(ctx, update)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Webhook references unknown order",
			zap.String("event_id", evt.ID),
			zap.String("order_id", evt.OrderID))
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, evt.OrderID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to apply payment update: %w", err)
	}
	if !applied {
		return OutcomeDuplicate, nil
	}

	s.logger.Info("Order reconciled",
		zap.String("event_id", evt.ID),
		zap.String("order_id", evt.OrderID),
		zap.String("status", update.Status))

	s.publish(ctx, evt, order, update)
	return OutcomeApplied, nil
}

func (s *ReconciliationService) ignore(evt *models.PaymentEvent, reason string) Outcome {
	s.logger.Debug("Ignoring webhook event",
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("reason", reason))
	return OutcomeIgnored
}

func (s *ReconciliationService) paidUpdate(evt *models.PaymentEvent, notes string) store.PaymentUpdate {
	paidAt := s.now()
	return store.PaymentUpdate{
		EventID:         evt.ID,
		EventType:       evt.Type,
		OrderID:         evt.OrderID,
		Status:          models.OrderStatusPaid,
		PaymentStatus:   models.PaymentStatusCompleted,
		SessionID:       optionalString(evt.SessionID),
		PaymentIntentID: optionalString(evt.PaymentIntentID),
		PaidAt:          &paidAt,
		Notes:           notes,
	}
}

func (s *ReconciliationService) failedUpdate(evt *models.PaymentEvent, notes string) store.PaymentUpdate {
	return store.PaymentUpdate{
		EventID:         evt.ID,
		EventType:       evt.Type,
		OrderID:         evt.OrderID,
		Status:          models.OrderStatusPaymentFailed,
		PaymentStatus:   models.PaymentStatusFailed,
		SessionID:       optionalString(evt.SessionID),
		PaymentIntentID: optionalString(evt.PaymentIntentID),
		Notes:           notes,
	}
}

func (s *ReconciliationService) publish(ctx context.Context, evt *models.PaymentEvent, order *models.Order, u store.PaymentUpdate) {
	base := models.BaseEvent{EventID: uuid.New().String(), Timestamp: s.now()}

	var err error
	switch u.Status {
	case models.OrderStatusPaid:
		util.OrdersPaidTotal.Inc()
		base.EventType = models.EventTypeOrderPaid
		paid := &models.OrderPaidEvent{
			BaseEvent:       base,
			OrderID:         evt.OrderID,
			PaymentIntentID: evt.PaymentIntentID,
			SourceEventID:   evt.ID,
		}
		if order != nil && order.CustomerID != nil {
			paid.CustomerID = *order.CustomerID
		}
		if s.events != nil {
			err = s.events.PublishOrderPaid(ctx, paid)
		}
	case models.OrderStatusPaymentFailed:
		util.OrdersPaymentFailedTotal.Inc()
		base.EventType = models.EventTypeOrderPaymentFailed
		if s.events != nil {
			err = s.events.PublishOrderPaymentFailed(ctx, &models.OrderPaymentFailedEvent{
				BaseEvent:     base,
				OrderID:       evt.OrderID,
				Reason:        u.Notes,
				SourceEventID: evt.ID,
			})
		}
	}
	if err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("order_id", evt.OrderID),
			zap.Error(err))
	}
}
