package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type CatalogService interface {
	ListProducts(ctx context.Context, filter service.ProductFilter) ([]service.ProductView, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetProduct(ctx context.Context, id string) (*service.ProductView, error)
	ResolveVariant(ctx context.Context, id string, sel service.Selection) (*service.Resolution, error)
}

type CartService interface {
	Get(ctx context.Context, id auth.Identity, cartID string) (cart.Summary, error)
	AddItem(ctx context.Context, id auth.Identity, cartID string, req service.AddItemRequest) (cart.Summary, error)
	UpdateQuantity(ctx context.Context, id auth.Identity, cartID, itemID string, quantity int) (cart.Summary, error)
	RemoveItem(ctx context.Context, id auth.Identity, cartID, itemID string) (cart.Summary, error)
	Clear(ctx context.Context, id auth.Identity, cartID string) (cart.Summary, error)
}

type CheckoutService interface {
	PaymentConfig() service.PaymentConfig
	Quote(ctx context.Context, id auth.Identity) (service.Quote, error)
	PlaceOrder(ctx context.Context, id auth.Identity, req *service.CheckoutRequest) (*service.CheckoutResult, error)
}

type OrderService interface {
	ListCustomerOrders(ctx context.Context, id auth.Identity) (*service.CustomerOrders, error)
	GetCustomerOrder(ctx context.Context, id auth.Identity, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, req service.UpdateStatusRequest) (*models.Order, error)
	AddTracking(ctx context.Context, orderID string, req service.AddTrackingRequest) (*models.Order, error)
}

type ReviewService interface {
	ListProductReviews(ctx context.Context, productID string) (*service.ProductReviews, error)
	SubmitReview(ctx context.Context, id auth.Identity, productID string, in service.ReviewInput) (*models.Review, error)
}

type WishlistService interface {
	List(ctx context.Context, id auth.Identity) ([]models.WishlistItem, error)
	Toggle(ctx context.Context, id auth.Identity, productID string) (bool, error)
	Contains(ctx context.Context, id auth.Identity, productID string) (bool, error)
}

// Reconciler applies verified processor events.
type Reconciler interface {
	HandleEvent(ctx context.Context, evt *models.PaymentEvent) (service.Outcome, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handler to its services.
type Deps struct {
	Catalog        CatalogService
	Cart           CartService
	Checkout       CheckoutService
	Orders         OrderService
	Reviews        ReviewService
	Wishlist       WishlistService
	Verifier       service.WebhookVerifier
	Reconciler     Reconciler
	JWT            *auth.JWTValidator
	RateLimiter    *RateLimiter
	FulfillmentKey string
	Readiness      map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, logger: util.GetLogger()}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(util.GinLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Signed by the processor; no session, no rate limit.
	router.POST("/webhooks/stripe", h.stripeWebhook)

	v1 := router.Group("/api/v1")
	if h.RateLimiter != nil {
		v1.Use(h.RateLimiter.Middleware())
	}
	v1.Use(auth.OptionalAuth(h.JWT))
	{
		v1.GET("/categories", h.listCategories)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/products/:id/resolve", h.resolveVariant)
		v1.GET("/products/:id/reviews", h.listReviews)
		v1.POST("/products/:id/reviews", auth.RequireAuth(), h.submitReview)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:item_id", h.updateCartItem)
		v1.DELETE("/cart/items/:item_id", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)

		v1.GET("/checkout/config", h.checkoutConfig)
		v1.GET("/checkout/quote", auth.RequireAuth(), h.checkoutQuote)
		v1.POST("/checkout", auth.RequireAuth(), h.placeOrder)

		v1.GET("/orders", auth.RequireAuth(), h.listOrders)
		v1.GET("/orders/:id", auth.RequireAuth(), h.getOrder)

		v1.GET("/wishlist", auth.RequireAuth(), h.listWishlist)
		v1.POST("/wishlist/:product_id/toggle", h.toggleWishlist)
	}

	fulfillment := v1.Group("/fulfillment", requireFulfillmentKey(h.FulfillmentKey))
	{
		fulfillment.POST("/orders/:id/status", h.updateOrderStatus)
		fulfillment.POST("/orders/:id/tracking", h.addOrderTracking)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.Readiness {
		if err := p.Ping(ctx); err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
