package api

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody matches the processor's documented payload ceiling.
const maxWebhookBody = 65536

// stripeWebhook verifies and applies one processor event. The processor
// retries anything that is not a 2xx.
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}
	if len(payload) > maxWebhookBody {
		h.logger.Warn("Rejected oversized webhook", zap.Int("limit", maxWebhookBody))
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}

	if h.Verifier == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrWebhookUnconfigured.Error()})
		return
	}

	evt, err := h.Verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, service.ErrWebhookUnconfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrInvalidSignature):
		h.logger.Warn("Rejected webhook", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid payload", "details": err.Error()})
		return
	}

	outcome, err := h.Reconciler.HandleEvent(c.Request.Context(), evt)
	switch {
	case errors.Is(err, service.ErrMissingOrderID), errors.Is(err, service.ErrOrderNotFound):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Webhook processing failed",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
