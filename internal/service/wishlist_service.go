package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// WishlistStore persists saved products.
type WishlistStore interface {
	ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error)
	IsWishlisted(ctx context.Context, userID, productID string) (bool, error)
	ToggleWishlist(ctx context.Context, userID, productID string) (bool, error)
}

// WishlistService handles wishlist business logic
type WishlistService struct {
	store  WishlistStore
	logger *zap.Logger
}

// NewWishlistService creates a new wishlist service
func NewWishlistService(store WishlistStore) *WishlistService {
	return &WishlistService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Toggle adds the product if absent and removes it if present. It returns
// whether the product is on the wishlist afterwards.
func (s *WishlistService) Toggle(ctx context.Context, id auth.Identity, productID string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Toggle")
	defer span.End()

	if !id.Authenticated() {
		return false, ErrLoginRequired
	}
	if !isUUID(productID) {
		return false, ErrProductNotFound
	}

	added, err := s.store.ToggleWishlist(ctx, id.UserID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrProductNotFound
	}
	if err != nil {
		util.SpanError(span, err)
		return false, fmt.Errorf("failed to toggle wishlist: %w", err)
	}

	action := "removed"
	if added {
		action = "added"
	}
	util.WishlistTogglesTotal.WithLabelValues(action).Inc()
	s.logger.Debug("Wishlist toggled",
		zap.String("user_id", id.UserID),
		zap.String("product_id", productID),
		zap.String("action", action))
	return added, nil
}

func (s *WishlistService) List(ctx context.Context, id auth.Identity) ([]models.WishlistItem, error) {
	if !id.Authenticated() {
		return nil, ErrLoginRequired
	}
	return s.store.ListWishlist(ctx, id.UserID)
}

func (s *WishlistService) Contains(ctx context.Context, id auth.Identity, productID string) (bool, error) {
	if !id.Authenticated() || !isUUID(productID) {
		return false, nil
	}
	return s.store.IsWishlisted(ctx, id.UserID, productID)
}
