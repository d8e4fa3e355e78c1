package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Total number of orders created by checkout",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_paid_total",
		Help: "Total number of orders confirmed as paid by the payment processor",
	})

	OrdersPaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_payment_failed_total",
		Help: "Total number of orders whose payment failed or expired",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failed_total",
		Help: "Total number of checkout attempts that did not reach payment-pending",
	}, []string{"reason"})

	CheckoutSessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_session_latency_seconds",
		Help:    "Latency of hosted checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	OrderCompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_compensations_total",
		Help: "Compensating order deletions after item insertion failed",
	}, []string{"outcome"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Payment webhook events by type and outcome",
	}, []string{"type", "outcome"})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation",
	}, []string{"op"})

	ReviewsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reviews_submitted_total",
		Help: "Review submissions by outcome",
	}, []string{"outcome"})

	WishlistTogglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_wishlist_toggles_total",
		Help: "Wishlist toggles by resulting action",
	}, []string{"action"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
