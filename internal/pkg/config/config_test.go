package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWarehouseDefaults(t *testing.T) {
	t.Setenv("WAREHOUSE_LOW_STOCK_ALERT_MODE", "")

	cfg, err := LoadWarehouse()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, AlertModeLevel, cfg.LowStockAlertMode)
	assert.Equal(t, 2*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 4096, cfg.MutationCacheSize)
	assert.False(t, cfg.SeedSampleData)
	assert.Equal(t, "warehouse-service", cfg.OtelServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadWarehouseEnvOverrides(t *testing.T) {
	t.Setenv("WAREHOUSE_HTTP_ADDR", ":9999")
	t.Setenv("WAREHOUSE_LOW_STOCK_THRESHOLD", "3")
	t.Setenv("WAREHOUSE_LOW_STOCK_ALERT_MODE", "EDGE")
	t.Setenv("WAREHOUSE_HOLD_TTL", "45s")
	t.Setenv("WAREHOUSE_SEED_SAMPLE_DATA", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadWarehouse()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.LowStockThreshold)
	assert.Equal(t, AlertModeEdge, cfg.LowStockAlertMode)
	assert.Equal(t, 45*time.Second, cfg.HoldTTL)
	assert.True(t, cfg.SeedSampleData)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
}

func TestLoadWarehouseRejectsUnknownAlertMode(t *testing.T) {
	t.Setenv("WAREHOUSE_LOW_STOCK_ALERT_MODE", "sometimes")
	_, err := LoadWarehouse()
	assert.Error(t, err)
}

func TestLoadStorefrontDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_RESERVATION_MODE", "")

	cfg, err := LoadStorefront()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8081", cfg.WarehouseURL)
	assert.Equal(t, 5*time.Second, cfg.WarehouseTimeout)
	assert.Equal(t, ReservationModeHold, cfg.ReservationMode)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 24*time.Hour, cfg.DedupeTTL)
	assert.Equal(t, 16, cfg.ConsumerPrefetch)
	assert.Equal(t, "storefront-service", cfg.OtelServiceName)
}

func TestLoadStorefrontEnvOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_RESERVATION_MODE", "direct")
	t.Setenv("STOREFRONT_WAREHOUSE_TIMEOUT", "750ms")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadStorefront()
	require.NoError(t, err)

	assert.Equal(t, ReservationModeDirect, cfg.ReservationMode)
	assert.Equal(t, 750*time.Millisecond, cfg.WarehouseTimeout)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoadStorefrontRejectsUnknownReservationMode(t *testing.T) {
	t.Setenv("STOREFRONT_RESERVATION_MODE", "optimistic")
	_, err := LoadStorefront()
	assert.Error(t, err)
}
