package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const minReviewComment = 10

// ReviewStore persists product reviews.
type ReviewStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	ListApprovedReviews(ctx context.Context, productID string) ([]models.Review, error)
	HasReviewed(ctx context.Context, productID, userID string) (bool, error)
	CreateReview(ctx context.Context, review *models.Review) error
	OrderContainsProduct(ctx context.Context, orderID, customerID, productID string) (bool, error)
}

// ReviewInput is a shopper's submitted review.
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	OrderID string `json:"order_id"`
}

// ReviewStats summarizes approved reviews. Distribution counts 5 stars first.
type ReviewStats struct {
	Count        int     `json:"count"`
	Average      float64 `json:"average"`
	Distribution [5]int  `json:"distribution"`
}

// ProductReviews is what a product page shows.
type ProductReviews struct {
	Reviews []models.Review `json:"reviews"`
	Stats   ReviewStats     `json:"stats"`
}

// ReviewService handles product reviews
type ReviewService struct {
	store  ReviewStore
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(store ReviewStore) *ReviewService {
	return &ReviewService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ComputeStats averages ratings to one decimal place.
func ComputeStats(reviews []models.Review) ReviewStats {
	var stats ReviewStats
	sum := 0
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		stats.Count++
		sum += r.Rating
		stats.Distribution[5-r.Rating]++
	}
	if stats.Count > 0 {
		stats.Average = math.Round(float64(sum)/float64(stats.Count)*10) / 10
	}
	return stats
}

// ListProductReviews returns approved reviews, newest first, with stats.
func (s *ReviewService) ListProductReviews(ctx context.Context, productID string) (*ProductReviews, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ListProductReviews")
	defer span.End()

	if !isUUID(productID) {
		return nil, ErrProductNotFound
	}

	reviews, err := s.store.ListApprovedReviews(ctx, productID)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return &ProductReviews{Reviews: reviews, Stats: ComputeStats(reviews)}, nil
}

func validateReview(in ReviewInput) error {
	fields := map[string]string{}
	if in.Rating < 1 || in.Rating > 5 {
		fields["rating"] = "must be between 1 and 5"
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Comment)) < minReviewComment {
		fields["comment"] = fmt.Sprintf("must be at least %d characters", minReviewComment)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// SubmitReview stores a review from a signed-in shopper. One review per
// product per shopper.
func (s *ReviewService) SubmitReview(ctx context.Context, id auth.Identity, productID string, in ReviewInput) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.SubmitReview")
	defer span.End()

	if !id.Authenticated() {
		return nil, ErrSignInRequired
	}
	if err := validateReview(in); err != nil {
		util.ReviewsSubmittedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if !isUUID(productID) {
		return nil, ErrProductNotFound
	}

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	reviewed, err := s.store.HasReviewed(ctx, productID, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing review: %w", err)
	}
	if reviewed {
		util.ReviewsSubmittedTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyReviewed
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    id.UserID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		Status:    models.ReviewStatusApproved,
	}

	if orderID := strings.TrimSpace(in.OrderID); orderID != "" && isUUID(orderID) {
		verified, err := s.store.OrderContainsProduct(ctx, orderID, id.UserID, productID)
		if err != nil {
			s.logger.Warn("Failed to verify purchase",
				zap.String("order_id", orderID),
				zap.Error(err))
		}
		if verified {
			review.OrderID = &orderID
			review.VerifiedPurchase = true
		}
	}

	if err := s.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			util.ReviewsSubmittedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrAlreadyReviewed
		}
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	util.ReviewsSubmittedTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Review submitted",
		zap.String("product_id", productID),
		zap.String("user_id", id.UserID),
		zap.Int("rating", review.Rating),
		zap.Bool("verified_purchase", review.VerifiedPurchase))
	return review, nil
}
