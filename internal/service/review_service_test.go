package service

import (
	"context"
	"fmt"
	"testing"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReviewStore struct {
	products  map[string]bool
	reviews   []models.Review
	purchases map[string]string // orderID|userID|productID -> payment status
	raceDup   bool
}

func (f *fakeReviewStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	if !f.products[id] {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return &models.Product{ID: id}, nil
}

func (f *fakeReviewStore) ListApprovedReviews(ctx context.Context, productID string) ([]models.Review, error) {
	out := []models.Review{}
	for i := len(f.reviews) - 1; i >= 0; i-- {
		r := f.reviews[i]
		if r.ProductID == productID && r.Status == models.ReviewStatusApproved {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) HasReviewed(ctx context.Context, productID, userID string) (bool, error) {
	for _, r := range f.reviews {
		if r.ProductID == productID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReviewStore) CreateReview(ctx context.Context, review *models.Review) error {
	if f.raceDup {
		return fmt.Errorf("review: %w", store.ErrDuplicate)
	}
	review.ID = uuid.New().String()
	f.reviews = append(f.reviews, *review)
	return nil
}

func (f *fakeReviewStore) OrderContainsProduct(ctx context.Context, orderID, customerID, productID string) (bool, error) {
	return f.purchases[orderID+"|"+customerID+"|"+productID] == models.PaymentStatusCompleted, nil
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]models.Review{
		{Rating: 5}, {Rating: 5}, {Rating: 4}, {Rating: 1},
	})
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 3.8, stats.Average)
	assert.Equal(t, [5]int{2, 1, 0, 0, 1}, stats.Distribution)

	empty := ComputeStats(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Average)
}

func TestSubmitReview(t *testing.T) {
	productID := uuid.New().String()
	orderID := uuid.New().String()
	unpaidOrderID := uuid.New().String()

	newSvc := func() (*ReviewService, *fakeReviewStore) {
		st := &fakeReviewStore{
			products: map[string]bool{productID: true},
			purchases: map[string]string{
				orderID + "|user-1|" + productID:       models.PaymentStatusCompleted,
				unpaidOrderID + "|user-1|" + productID: models.PaymentStatusPending,
			},
		}
		return NewReviewService(st), st
	}

	t.Run("accepted with verified purchase", func(t *testing.T) {
		svc, st := newSvc()
		review, err := svc.SubmitReview(context.Background(), shopper, productID, ReviewInput{
			Rating:  5,
			Comment: "  Great vinyl banner, colors are vivid  ",
			OrderID: orderID,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusApproved, review.Status)
		assert.True(t, review.VerifiedPurchase)
		assert.Equal(t, "Great vinyl banner, colors are vivid", review.Comment)
		assert.Len(t, st.reviews, 1)

		listed, err := svc.ListProductReviews(context.Background(), productID)
		require.NoError(t, err)
		assert.Len(t, listed.Reviews, 1)
		assert.Equal(t, 5.0, listed.Stats.Average)
	})

	t.Run("order from someone else is not verified", func(t *testing.T) {
		svc, _ := newSvc()
		other := auth.Identity{UserID: "user-2", Email: "bob@example.com"}
		review, err := svc.SubmitReview(context.Background(), other, productID, ReviewInput{
			Rating: 4, Comment: "Solid sign, arrived on time", OrderID: orderID,
		})
		require.NoError(t, err)
		assert.False(t, review.VerifiedPurchase)
		assert.Nil(t, review.OrderID)
	})

	t.Run("unpaid order is not verified", func(t *testing.T) {
		svc, _ := newSvc()
		review, err := svc.SubmitReview(context.Background(), shopper, productID, ReviewInput{
			Rating: 5, Comment: "Ordered it, looks promising", OrderID: unpaidOrderID,
		})
		require.NoError(t, err)
		assert.False(t, review.VerifiedPurchase)
		assert.Nil(t, review.OrderID)
	})

	t.Run("validation", func(t *testing.T) {
		svc, st := newSvc()
		_, err := svc.SubmitReview(context.Background(), shopper, productID, ReviewInput{Rating: 0, Comment: "   short    "})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "rating")
		assert.Contains(t, verr.Fields, "comment")
		assert.Empty(t, st.reviews)
	})

	t.Run("anonymous", func(t *testing.T) {
		svc, _ := newSvc()
		_, err := svc.SubmitReview(context.Background(), auth.Identity{}, productID, ReviewInput{Rating: 5, Comment: "Lovely product overall"})
		assert.ErrorIs(t, err, ErrSignInRequired)
	})

	t.Run("second review", func(t *testing.T) {
		svc, _ := newSvc()
		in := ReviewInput{Rating: 3, Comment: "Decent quality for the price"}
		_, err := svc.SubmitReview(context.Background(), shopper, productID, in)
		require.NoError(t, err)
		_, err = svc.SubmitReview(context.Background(), shopper, productID, in)
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})

	t.Run("unique constraint race", func(t *testing.T) {
		svc, st := newSvc()
		st.raceDup = true
		_, err := svc.SubmitReview(context.Background(), shopper, productID, ReviewInput{Rating: 3, Comment: "Decent quality for the price"})
		assert.ErrorIs(t, err, ErrAlreadyReviewed)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, _ := newSvc()
		_, err := svc.SubmitReview(context.Background(), shopper, uuid.New().String(), ReviewInput{Rating: 3, Comment: "Decent quality for the price"})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}
