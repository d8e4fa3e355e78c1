package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("TAX_RATE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.065")))
	assert.Equal(t, 720*time.Hour, cfg.Cart.TTL)
	assert.Equal(t, 30*time.Second, cfg.Checkout.LockTimeout)
	assert.False(t, cfg.Stripe.PaymentsEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STRIPE_PUBLISHABLE_KEY", "pk_test_1")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Stripe.PaymentsEnabled())
}

func TestLoadInvalidTaxRateFallsBack(t *testing.T) {
	t.Setenv("TAX_RATE", "six percent")

	cfg := Load()

	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.065")))
}

func TestLoadClampsCheckoutLock(t *testing.T) {
	for _, v := range []string{"0", "-10", "2"} {
		t.Setenv("CHECKOUT_LOCK_SECONDS", v)

		cfg := Load()

		assert.Equal(t, 5*time.Second, cfg.Checkout.LockTimeout, "CHECKOUT_LOCK_SECONDS=%s", v)
	}
}
