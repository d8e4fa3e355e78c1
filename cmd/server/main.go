package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("storefront", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	// A typed nil gateway would defeat the availability check.
	var gateway service.PaymentGateway
	if cfg.Stripe.PaymentsEnabled() {
		gateway = service.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.Currency)
	} else {
		logger.Warn("Stripe keys missing, checkout will report payment unavailable")
	}

	catalogService := service.NewCatalogService(db)
	cartService := service.NewCartService(redisClient, catalogService, cfg.Cart.TTL)
	checkoutService := service.NewCheckoutService(db, cartService, redisClient, gateway, eventPublisher, service.CheckoutConfig{
		PublishableKey: cfg.Stripe.PublishableKey,
		Currency:       cfg.Stripe.Currency,
		TaxRate:        cfg.Checkout.TaxRate,
		SuccessURL:     cfg.Checkout.SuccessURL,
		CancelURL:      cfg.Checkout.CancelURL,
		LockTimeout:    cfg.Checkout.LockTimeout,
	})
	orderService := service.NewOrderService(db, eventPublisher)
	reviewService := service.NewReviewService(db)
	wishlistService := service.NewWishlistService(db)
	reconciliationService := service.NewReconciliationService(db, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	cartConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	cartWorker := worker.NewCartWorker(cartConsumer, cartService, redisClient)
	go func() {
		if err := cartWorker.Start(workerCtx); err != nil {
			logger.Error("Cart worker error", zap.Error(err))
		}
	}()

	rateLimiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go rateLimiter.Cleanup(workerCtx, time.Minute, 10*time.Minute)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Catalog:        catalogService,
		Cart:           cartService,
		Checkout:       checkoutService,
		Orders:         orderService,
		Reviews:        reviewService,
		Wishlist:       wishlistService,
		Verifier:       service.NewStripeWebhookVerifier(cfg.Stripe.WebhookSecret),
		Reconciler:     reconciliationService,
		JWT:            auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		RateLimiter:    rateLimiter,
		FulfillmentKey: cfg.Fulfillment.APIKey,
		Readiness: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := cartWorker.Stop(); err != nil {
		logger.Warn("Cart worker did not stop cleanly", zap.Error(err))
	}

	logger.Info("Server exited")
}
