package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartStore persists carts keyed by owner.
type CartStore interface {
	GetCart(ctx context.Context, owner string) (*cart.Cart, error)
	UpdateCart(ctx context.Context, owner string, ttl time.Duration, fn func(*cart.Cart) error) (*cart.Cart, error)
	DeleteCart(ctx context.Context, owner string) error
	MergeCarts(ctx context.Context, from, to string, ttl time.Duration) (*cart.Cart, error)
}

// VariantResolver looks up a product and resolves a selection against it.
type VariantResolver interface {
	ResolveVariant(ctx context.Context, productID string, sel Selection) (*Resolution, error)
}

// AddItemRequest represents a request to add a product to the cart
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

// CartService handles cart business logic
type CartService struct {
	store    CartStore
	resolver VariantResolver
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, resolver VariantResolver, ttl time.Duration) *CartService {
	return &CartService{
		store:    store,
		resolver: resolver,
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// UserCartOwner is the cart key owner for a signed-in shopper.
func UserCartOwner(userID string) string {
	return "user:" + userID
}

// owner picks the cart for this request. A signed-in shopper who still sends
// an anonymous cart id gets that cart folded into theirs first.
func (s *CartService) owner(ctx context.Context, id auth.Identity, cartID string) (string, error) {
	if !id.Authenticated() {
		if cartID == "" {
			return "", ErrCartIDRequired
		}
		return "anon:" + cartID, nil
	}

	owner := UserCartOwner(id.UserID)
	if cartID != "" {
		if _, err := s.store.MergeCarts(ctx, "anon:"+cartID, owner, s.ttl); err != nil {
			s.logger.Warn("Failed to merge anonymous cart",
				zap.String("cart_id", cartID),
				zap.String("user_id", id.UserID),
				zap.Error(err))
		}
	}
	return owner, nil
}

// Get returns the current cart.
func (s *CartService) Get(ctx context.Context, id auth.Identity, cartID string) (cart.Summary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Get")
	defer span.End()

	owner, err := s.owner(ctx, id, cartID)
	if err != nil {
		return cart.Summary{}, err
	}
	c, err := s.store.GetCart(ctx, owner)
	if err != nil {
		util.SpanError(span, err)
		return cart.Summary{}, fmt.Errorf("failed to load cart: %w", err)
	}
	return c.Summary(), nil
}

// Load returns the raw cart of a signed-in shopper.
func (s *CartService) Load(ctx context.Context, userID string) (*cart.Cart, error) {
	return s.store.GetCart(ctx, UserCartOwner(userID))
}

// AddItem resolves the selection and adds the resulting line.
func (s *CartService) AddItem(ctx context.Context, id auth.Identity, cartID string, req AddItemRequest) (cart.Summary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	owner, err := s.owner(ctx, id, cartID)
	if err != nil {
		return cart.Summary{}, err
	}

	sel := Selection{Size: req.Size, Color: req.Color}
	res, err := s.resolver.ResolveVariant(ctx, req.ProductID, sel)
	if err != nil {
		return cart.Summary{}, err
	}
	item, err := BuildCartItem(*res, sel)
	if err != nil {
		return cart.Summary{}, err
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	return s.mutate(ctx, owner, "add", func(c *cart.Cart) error {
		c.AddItem(item, quantity)
		return nil
	})
}

// UpdateQuantity sets a line's quantity, clamped to its bounds.
func (s *CartService) UpdateQuantity(ctx context.Context, id auth.Identity, cartID, itemID string, quantity int) (cart.Summary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	owner, err := s.owner(ctx, id, cartID)
	if err != nil {
		return cart.Summary{}, err
	}
	return s.mutate(ctx, owner, "update", func(c *cart.Cart) error {
		_, err := c.UpdateQuantity(itemID, quantity)
		return err
	})
}

// RemoveItem deletes a line. Removing an absent line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, id auth.Identity, cartID, itemID string) (cart.Summary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	owner, err := s.owner(ctx, id, cartID)
	if err != nil {
		return cart.Summary{}, err
	}
	return s.mutate(ctx, owner, "remove", func(c *cart.Cart) error {
		c.RemoveItem(itemID)
		return nil
	})
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, id auth.Identity, cartID string) (cart.Summary, error) {
	owner, err := s.owner(ctx, id, cartID)
	if err != nil {
		return cart.Summary{}, err
	}
	if err := s.store.DeleteCart(ctx, owner); err != nil {
		return cart.Summary{}, fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return cart.New().Summary(), nil
}

// ClearForCustomer empties a signed-in shopper's cart after a paid order.
func (s *CartService) ClearForCustomer(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.store.DeleteCart(ctx, UserCartOwner(userID)); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	s.logger.Info("Cart cleared after payment", zap.String("user_id", userID))
	return nil
}

func (s *CartService) mutate(ctx context.Context, owner, op string, fn func(*cart.Cart) error) (cart.Summary, error) {
	c, err := s.store.UpdateCart(ctx, owner, s.ttl, fn)
	if err != nil {
		return cart.Summary{}, err
	}
	util.CartMutationsTotal.WithLabelValues(op).Inc()
	return c.Summary(), nil
}
