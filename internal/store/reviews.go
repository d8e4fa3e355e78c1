package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// ListApprovedReviews returns a product's visible reviews, newest first.
func (s *Store) ListApprovedReviews(ctx context.Context, productID string) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews, `
		SELECT id, product_id, user_id, order_id, rating, comment, status, verified_purchase, created_at
		FROM reviews
		WHERE product_id = $1 AND status = $2
		ORDER BY created_at DESC`, productID, models.ReviewStatusApproved)
	return reviews, err
}

// HasReviewed reports whether the user already reviewed the product.
func (s *Store) HasReviewed(ctx context.Context, productID, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM reviews WHERE product_id = $1 AND user_id = $2)",
		productID, userID)
	return exists, err
}

// CreateReview inserts a review. A second review of the same product by the
// same user fails with ErrDuplicate.
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (product_id, user_id, order_id, rating, comment, status, verified_purchase)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		review.ProductID, review.UserID, review.OrderID, review.Rating, review.Comment,
		review.Status, review.VerifiedPurchase,
	).Scan(&review.ID, &review.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("review of %s by %s: %w", review.ProductID, review.UserID, ErrDuplicate)
	}
	return err
}
