package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderIDPlaceholder in a return URL is replaced with the new order's id.
const OrderIDPlaceholder = "{ORDER_ID}"

// SalesTaxLine is the processor line item that carries tax.
const SalesTaxLine = "Sales tax"

// CheckoutStore is the write side of orders used during checkout.
type CheckoutStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	DeleteOrder(ctx context.Context, orderID string) error
	SetCheckoutSession(ctx context.Context, orderID, sessionID string) error
}

// CartLoader returns a signed-in shopper's cart.
type CartLoader interface {
	Load(ctx context.Context, userID string) (*cart.Cart, error)
}

// Locker guards against duplicate checkout submissions.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// OrderEventPublisher publishes order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// CheckoutConfig is what the orchestrator needs from configuration.
type CheckoutConfig struct {
	PublishableKey string
	Currency       string
	TaxRate        decimal.Decimal
	SuccessURL     string
	CancelURL      string
	LockTimeout    time.Duration
}

// CheckoutRequest is the shipping/payment form.
type CheckoutRequest struct {
	CustomerName    string                 `json:"customer_name" validate:"required,min=2,max=200"`
	CustomerPhone   string                 `json:"customer_phone" validate:"max=40"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof=credit_card paypal"`
	Notes           string                 `json:"notes" validate:"max=1000"`
	SuccessURL      string                 `json:"success_url" validate:"omitempty,url"`
	CancelURL       string                 `json:"cancel_url" validate:"omitempty,url"`
}

// Quote is the single source of the amounts shown and charged.
type Quote struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// NewQuote prices a cart. Tax is rounded half up to cents.
func NewQuote(c *cart.Cart, taxRate decimal.Decimal) Quote {
	subtotal := c.Total()
	tax := subtotal.Mul(taxRate).Round(2)
	return Quote{
		Subtotal:  subtotal,
		TaxRate:   taxRate,
		Tax:       tax,
		Shipping:  decimal.Zero,
		Total:     subtotal.Add(tax),
		ItemCount: c.ItemCount(),
	}
}

// sessionLines builds processor line items from the same cart and quote, so
// the lines always sum to Quote.Total.
func sessionLines(c *cart.Cart, q Quote) []SessionLine {
	lines := make([]SessionLine, 0, len(c.Items)+1)
	for _, item := range c.Items {
		lines = append(lines, SessionLine{
			Name:       item.Name,
			UnitAmount: ToMinorUnits(item.Price),
			Quantity:   int64(item.Quantity),
			ImageURL:   item.ImageURL,
		})
	}
	if q.Tax.IsPositive() {
		lines = append(lines, SessionLine{Name: SalesTaxLine, UnitAmount: ToMinorUnits(q.Tax), Quantity: 1})
	}
	return lines
}

// CheckoutResult is returned once the shopper can be sent to the hosted page.
type CheckoutResult struct {
	OrderID     string               `json:"order_id"`
	SessionID   string               `json:"session_id"`
	RedirectURL string               `json:"url"`
	State       models.CheckoutState `json:"state"`
	Quote       Quote                `json:"quote"`
}

// PaymentConfig tells the client whether checkout can be offered.
type PaymentConfig struct {
	Available      bool            `json:"available"`
	PublishableKey string          `json:"publishable_key,omitempty"`
	Currency       string          `json:"currency"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Message        string          `json:"message,omitempty"`
}

// CheckoutService creates the order first, then the hosted payment session
// carrying the order id.
type CheckoutService struct {
	store    CheckoutStore
	carts    CartLoader
	locker   Locker
	gateway  PaymentGateway
	events   OrderEventPublisher
	cfg      CheckoutConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service. A nil gateway or empty
// publishable key puts checkout in the "payment unavailable" state.
func NewCheckoutService(
	store CheckoutStore,
	carts CartLoader,
	locker Locker,
	gateway PaymentGateway,
	events OrderEventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		store:    store,
		carts:    carts,
		locker:   locker,
		gateway:  gateway,
		events:   events,
		cfg:      cfg,
		validate: newValidator(),
		logger:   util.GetLogger(),
	}
}

func (s *CheckoutService) paymentsEnabled() bool {
	return s.gateway != nil && s.cfg.PublishableKey != ""
}

// PaymentConfig reports checkout availability to the client.
func (s *CheckoutService) PaymentConfig() PaymentConfig {
	pc := PaymentConfig{
		Available: s.paymentsEnabled(),
		Currency:  s.cfg.Currency,
		TaxRate:   s.cfg.TaxRate,
	}
	if pc.Available {
		pc.PublishableKey = s.cfg.PublishableKey
	} else {
		pc.Message = ErrPaymentUnavailable.Error()
	}
	return pc
}

// Quote prices the signed-in shopper's current cart.
func (s *CheckoutService) Quote(ctx context.Context, id auth.Identity) (Quote, error) {
	if !id.Authenticated() {
		return Quote{}, ErrSignInRequired
	}
	c, err := s.carts.Load(ctx, id.UserID)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to load cart: %w", err)
	}
	return NewQuote(c, s.cfg.TaxRate), nil
}

// PlaceOrder runs checkout up to the payment-pending state.
func (s *CheckoutService) PlaceOrder(ctx context.Context, id auth.Identity, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PlaceOrder")
	defer span.End()

	if err := validateStruct(s.validate, req); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if !id.Authenticated() || id.Email == "" {
		util.CheckoutFailedTotal.WithLabelValues("unauthenticated").Inc()
		return nil, ErrSignInRequired
	}

	if !s.paymentsEnabled() {
		util.CheckoutFailedTotal.WithLabelValues("payment_unavailable").Inc()
		return nil, ErrPaymentUnavailable
	}

	lockKey := "checkout:" + id.UserID
	token, err := s.locker.AcquireLock(ctx, lockKey, s.cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if token == "" {
		util.CheckoutFailedTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrCheckoutInProgress
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.String("user_id", id.UserID), zap.Error(err))
		}
	}()

	c, err := s.carts.Load(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if c.IsEmpty() {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	quote := NewQuote(c, s.cfg.TaxRate)
	order, err := s.createOrder(ctx, id, req, c, quote)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	successURL := strings.ReplaceAll(firstNonEmpty(req.SuccessURL, s.cfg.SuccessURL), OrderIDPlaceholder, order.ID)
	cancelURL := strings.ReplaceAll(firstNonEmpty(req.CancelURL, s.cfg.CancelURL), OrderIDPlaceholder, order.ID)

	sess, err := s.gateway.CreateCheckoutSession(ctx, SessionRequest{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		PaymentMethod: order.PaymentMethod,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Lines:         sessionLines(c, quote),
	})
	if err != nil {
		// The order stays PENDING.
		util.CheckoutFailedTotal.WithLabelValues("payment_provider").Inc()
		util.SpanError(span, err)
		s.logger.Error("Checkout session creation failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.SetCheckoutSession(ctx, order.ID, sess.ID); err != nil {
		// Reconciliation keys on metadata order_id, not the session id.
		s.logger.Warn("Failed to record checkout session",
			zap.String("order_id", order.ID),
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	s.logger.Info("Checkout session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", sess.ID),
		zap.String("total", quote.Total.StringFixed(2)))

	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   sess.ID,
		RedirectURL: sess.URL,
		State:       models.CheckoutPaymentPending,
		Quote:       quote,
	}, nil
}

// createOrder persists the order and its items. If the items cannot be
// written the order is deleted again.
func (s *CheckoutService) createOrder(ctx context.Context, id auth.Identity, req *CheckoutRequest, c *cart.Cart, q Quote) (*models.Order, error) {
	customerID := id.UserID
	order := &models.Order{
		ID:              uuid.New().String(),
		CustomerID:      &customerID,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(id.Email)),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   optionalString(req.CustomerPhone),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Subtotal:        q.Subtotal,
		Tax:             q.Tax,
		Total:           q.Total,
		Notes:           optionalString(req.Notes),
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.OrderItem, 0, len(c.Items))
	eventItems := make([]models.OrderItemData, 0, len(c.Items))
	for _, line := range c.Items {
		productID := line.ProductID
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   &productID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.Price,
			TotalPrice:  line.LineTotal(),
			Size:        optionalString(line.Size),
			Color:       optionalString(line.Color),
			ImageURL:    optionalString(line.ImageURL),
		})
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
		})
	}

	if err := s.store.CreateOrderItems(ctx, items); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		s.compensateOrder(ctx, order.ID, err)
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	order.Items = items

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("customer_email", order.CustomerEmail))

	if s.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:       order.ID,
			CustomerID:    customerID,
			CustomerEmail: order.CustomerEmail,
			Total:         order.Total,
			Items:         eventItems,
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return order, nil
}

func (s *CheckoutService) compensateOrder(ctx context.Context, orderID string, cause error) {
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		util.OrderCompensationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Compensating order delete failed, order left orphaned",
			zap.String("order_id", orderID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	util.OrderCompensationsTotal.WithLabelValues("deleted").Inc()
	s.logger.Warn("Order deleted after item insertion failed",
		zap.String("order_id", orderID),
		zap.Error(cause))
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
