package api

import (
	"errors"
	"net/http"

	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSizeRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCartIDRequired),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrUnknownCarrier),
		errors.Is(err, service.ErrMissingOrderID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSignInRequired),
		errors.Is(err, service.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrCheckoutInProgress),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, redisclient.ErrCartContention):
		return http.StatusConflict
	case errors.Is(err, service.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrPaymentProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Internal failures are logged and their
// details withheld.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		body["error"] = "Validation failed"
		body["fields"] = verr.Fields
	}
	if errors.Is(err, service.ErrSizeRequired) {
		body["fields"] = map[string]string{"size": err.Error()}
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body["error"] = "Internal server error"
	}

	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
