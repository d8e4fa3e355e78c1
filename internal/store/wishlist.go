package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// ListWishlist returns a user's saved products, most recent first.
func (s *Store) ListWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT w.id, w.user_id, w.product_id, w.created_at,
			p.name AS product_name, p.price AS product_price, p.image_url AS product_image_url
		FROM wishlist_items w
		LEFT JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`, userID)
	return items, err
}

// IsWishlisted reports whether the product is on the user's wishlist.
func (s *Store) IsWishlisted(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wishlist_items WHERE user_id = $1 AND product_id = $2)",
		userID, productID)
	return exists, err
}

// ToggleWishlist removes the product if present, otherwise adds it, and
// returns the resulting membership.
func (s *Store) ToggleWishlist(ctx context.Context, userID, productID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return false, err
	}
	removed, _ := res.RowsAffected()

	if removed == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2) ON CONFLICT (user_id, product_id) DO NOTHING",
			userID, productID)
		if IsForeignKeyViolation(err) {
			return false, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}
