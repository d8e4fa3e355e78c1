package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// CartIDHeader carries the anonymous cart id.
const CartIDHeader = "X-Cart-ID"

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	sum, err := h.Cart.Get(c.Request.Context(), auth.Current(c), c.GetHeader(CartIDHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sum, err := h.Cart.AddItem(c.Request.Context(), auth.Current(c), c.GetHeader(CartIDHeader), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sum, err := h.Cart.UpdateQuantity(c.Request.Context(), auth.Current(c), c.GetHeader(CartIDHeader), c.Param("item_id"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	sum, err := h.Cart.RemoveItem(c.Request.Context(), auth.Current(c), c.GetHeader(CartIDHeader), c.Param("item_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) clearCart(c *gin.Context) {
	sum, err := h.Cart.Clear(c.Request.Context(), auth.Current(c), c.GetHeader(CartIDHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
