package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// MetadataOrderID is the metadata key that threads our order id through the
// payment processor back to the webhook.
const MetadataOrderID = "order_id"

// SessionLine is one processor line item, priced in minor units.
type SessionLine struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	ImageURL   string
}

// SessionRequest describes a hosted checkout session for one order.
type SessionRequest struct {
	OrderID       string
	CustomerEmail string
	PaymentMethod string
	SuccessURL    string
	CancelURL     string
	Lines         []SessionLine
}

type Session struct {
	ID  string
	URL string
}

// PaymentGateway creates hosted payment pages.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// ToMinorUnits converts a dollar amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// StripeGateway creates Stripe Checkout sessions in payment mode.
type StripeGateway struct {
	api      *client.API
	currency string
	logger   *zap.Logger
}

// NewStripeGateway creates a gateway using its own API client rather than the
// package-level stripe.Key.
func NewStripeGateway(secretKey, currency string) *StripeGateway {
	return &StripeGateway{
		api:      client.New(secretKey, nil),
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// stripePaymentMethodTypes maps the method chosen at checkout onto the
// session's payment method types so the charge matches the stored order.
func stripePaymentMethodTypes(method string) []string {
	if method == models.PaymentMethodPayPal {
		return []string{"paypal"}
	}
	return []string{"card"}
}

func validateSessionRequest(req SessionRequest) error {
	if req.OrderID == "" {
		return ErrMissingOrderID
	}
	if len(req.Lines) == 0 {
		return newValidationError("items", "is required")
	}
	for _, line := range req.Lines {
		if line.Quantity < 1 || line.UnitAmount < 0 {
			return newValidationError("items", fmt.Sprintf("invalid line %q", line.Name))
		}
	}
	return nil
}

// CreateCheckoutSession creates the hosted page. The order id is attached to
// both the session and its payment intent.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "StripeGateway.CreateCheckoutSession")
	defer span.End()

	if err := validateSessionRequest(req); err != nil {
		return nil, err
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, line := range req.Lines {
		item := &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(line.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
			Quantity: stripe.Int64(line.Quantity),
		}
		if line.ImageURL != "" {
			item.PriceData.ProductData.Images = []*string{stripe.String(line.ImageURL)}
		}
		lineItems = append(lineItems, item)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice(stripePaymentMethodTypes(req.PaymentMethod)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.OrderID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataOrderID: req.OrderID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.Context = ctx

	start := time.Now()
	sess, err := g.api.CheckoutSessions.New(params)
	util.CheckoutSessionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.SpanError(span, err)
		g.logger.Error("Failed to create checkout session",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrPaymentProvider, stripeMessage(err))
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func stripeMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

// WebhookVerifier checks processor signatures and decodes events.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*models.PaymentEvent, error)
}

// StripeWebhookVerifier verifies the Stripe-Signature header.
type StripeWebhookVerifier struct {
	secret string
}

func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

// Verify authenticates payload and reduces it to a PaymentEvent. Events of
// types reconciliation does not handle come back with only ID and Type set.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	if v.secret == "" {
		return nil, ErrWebhookUnconfigured
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &models.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case models.PaymentEventSessionCompleted, models.PaymentEventSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.OrderID = sess.Metadata[MetadataOrderID]
		out.SessionID = sess.ID
		out.AmountTotal = sess.AmountTotal
		out.CustomerEmail = sess.CustomerEmail
		if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
			out.CustomerEmail = sess.CustomerDetails.Email
		}
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}

	case models.PaymentEventPaymentIntentSucceeded, models.PaymentEventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.OrderID = pi.Metadata[MetadataOrderID]
		out.PaymentIntentID = pi.ID
		out.AmountTotal = pi.Amount
		out.CustomerEmail = pi.ReceiptEmail
	}

	return out, nil
}
