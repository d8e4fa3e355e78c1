package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) checkoutConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Checkout.PaymentConfig())
}

func (h *Handler) checkoutQuote(c *gin.Context) {
	quote, err := h.Checkout.Quote(c.Request.Context(), auth.Current(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// placeOrder creates the order and returns the hosted payment page URL.
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Checkout.PlaceOrder(c.Request.Context(), auth.Current(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.ListCustomerOrders(c.Request.Context(), auth.Current(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.Orders.GetCustomerOrder(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) addOrderTracking(c *gin.Context) {
	var req service.AddTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.AddTracking(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
