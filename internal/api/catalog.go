package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.Catalog.ListProducts(c.Request.Context(), service.ProductFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) getProduct(c *gin.Context) {
	ctx := c.Request.Context()
	product, err := h.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"product": product}
	if id := auth.Current(c); id.Authenticated() && h.Wishlist != nil {
		if saved, err := h.Wishlist.Contains(ctx, id, product.ID); err == nil {
			resp["wishlisted"] = saved
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) resolveVariant(c *gin.Context) {
	var sel service.Selection
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&sel); err != nil {
			badRequest(c, err)
			return
		}
	}

	res, err := h.Catalog.ResolveVariant(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listReviews(c *gin.Context) {
	reviews, err := h.Reviews.ListProductReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (h *Handler) submitReview(c *gin.Context) {
	var in service.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	review, err := h.Reviews.SubmitReview(c.Request.Context(), auth.Current(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) listWishlist(c *gin.Context) {
	items, err := h.Wishlist.List(c.Request.Context(), auth.Current(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) toggleWishlist(c *gin.Context) {
	productID := c.Param("product_id")
	added, err := h.Wishlist.Toggle(c.Request.Context(), auth.Current(c), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "wishlisted": added})
}
