package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "FIRST20", cfg.Coupon.Code)
	assert.True(t, decimal.RequireFromString("0.2").Equal(cfg.Coupon.Discount))
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.True(t, cfg.Catalog.Singleflight)
	assert.True(t, decimal.NewFromInt(60).Equal(cfg.Checkout.InsideDhakaFee))
	assert.Equal(t, []string{"order-events", "catalog-events"}, []string{cfg.Kafka.TopicOrder, cfg.Kafka.TopicCatalog})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COUPON_PERCENT", "15")
	t.Setenv("CATALOG_CACHE_TTL", "30s")
	t.Setenv("CATALOG_SINGLEFLIGHT", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COURIER_FEE_OUTSIDE_DHAKA", "-5")
	t.Setenv("ORDER_SINK_TIMEOUT", "nonsense")
	t.Setenv("INSTANCE_ID", "web-2")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg := Load()

	assert.True(t, decimal.RequireFromString("0.15").Equal(cfg.Coupon.Discount))
	assert.Equal(t, 30*time.Second, cfg.Catalog.CacheTTL)
	assert.False(t, cfg.Catalog.Singleflight)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, decimal.NewFromInt(120).Equal(cfg.Checkout.OutsideDhakaFee))
	assert.Equal(t, 10*time.Second, cfg.Checkout.SinkTimeout)
	assert.Equal(t, "web-2", cfg.Kafka.InstanceID)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
}
