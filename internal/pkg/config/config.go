// Package config loads service configuration from the environment.
//
// Every field is bound to the environment variable named by its mapstructure
// tag; defaults are registered per service before unmarshalling.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Telemetry is shared by both services.
type Telemetry struct {
	OtelServiceName      string `mapstructure:"OTEL_SERVICE_NAME"`
	OtelExporterEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel             string `mapstructure:"LOG_LEVEL"`
}

// Warehouse configures cmd/warehouse-service.
type Warehouse struct {
	HTTPAddr          string        `mapstructure:"WAREHOUSE_HTTP_ADDR"`
	DatabaseURL       string        `mapstructure:"WAREHOUSE_DATABASE_URL"`
	RabbitMQURL       string        `mapstructure:"RABBITMQ_URL"`
	LowStockThreshold int           `mapstructure:"WAREHOUSE_LOW_STOCK_THRESHOLD"`
	LowStockAlertMode string        `mapstructure:"WAREHOUSE_LOW_STOCK_ALERT_MODE"`
	HoldTTL           time.Duration `mapstructure:"WAREHOUSE_HOLD_TTL"`
	MutationCacheSize int           `mapstructure:"WAREHOUSE_MUTATION_CACHE_SIZE"`
	SeedSampleData    bool          `mapstructure:"WAREHOUSE_SEED_SAMPLE_DATA"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Telemetry `mapstructure:",squash"`
}

// Storefront configures cmd/storefront-service.
type Storefront struct {
	HTTPAddr          string        `mapstructure:"STOREFRONT_HTTP_ADDR"`
	WarehouseURL      string        `mapstructure:"STOREFRONT_WAREHOUSE_URL"`
	WarehouseTimeout  time.Duration `mapstructure:"STOREFRONT_WAREHOUSE_TIMEOUT"`
	DBPath            string        `mapstructure:"STOREFRONT_DB_PATH"`
	ReservationMode   string        `mapstructure:"STOREFRONT_RESERVATION_MODE"`
	HoldTTL           time.Duration `mapstructure:"STOREFRONT_HOLD_TTL"`
	ReconcileInterval time.Duration `mapstructure:"STOREFRONT_RECONCILE_INTERVAL"`
	ReconcileGrace    time.Duration `mapstructure:"STOREFRONT_RECONCILE_GRACE"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	ProductCacheTTL   time.Duration `mapstructure:"STOREFRONT_PRODUCT_CACHE_TTL"`
	DedupeTTL         time.Duration `mapstructure:"STOREFRONT_DEDUPE_TTL"`
	RabbitMQURL       string        `mapstructure:"RABBITMQ_URL"`
	ConsumerPrefetch  int           `mapstructure:"STOREFRONT_CONSUMER_PREFETCH"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Telemetry `mapstructure:",squash"`
}

const (
	AlertModeLevel = "level"
	AlertModeEdge  = "edge"

	ReservationModeHold   = "hold"
	ReservationModeDirect = "direct"
)

var telemetryDefaults = map[string]any{
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"LOG_LEVEL":                   "info",
	"SHUTDOWN_TIMEOUT":            "10s",
}

// LoadWarehouse reads the warehouse configuration.
func LoadWarehouse() (Warehouse, error) {
	var cfg Warehouse
	defaults := map[string]any{
		"WAREHOUSE_HTTP_ADDR":            ":8081",
		"WAREHOUSE_DATABASE_URL":         "",
		"RABBITMQ_URL":                   "",
		"WAREHOUSE_LOW_STOCK_THRESHOLD":  10,
		"WAREHOUSE_LOW_STOCK_ALERT_MODE": AlertModeLevel,
		"WAREHOUSE_HOLD_TTL":             "2m",
		"WAREHOUSE_MUTATION_CACHE_SIZE":  4096,
		"WAREHOUSE_SEED_SAMPLE_DATA":     false,
		"OTEL_SERVICE_NAME":              "warehouse-service",
	}
	if err := load(&cfg, defaults); err != nil {
		return cfg, err
	}

	cfg.LowStockAlertMode = strings.ToLower(cfg.LowStockAlertMode)
	if cfg.LowStockAlertMode != AlertModeLevel && cfg.LowStockAlertMode != AlertModeEdge {
		return cfg, fmt.Errorf("config: WAREHOUSE_LOW_STOCK_ALERT_MODE must be %q or %q, got %q",
			AlertModeLevel, AlertModeEdge, cfg.LowStockAlertMode)
	}
	if cfg.LowStockThreshold < 0 {
		return cfg, fmt.Errorf("config: WAREHOUSE_LOW_STOCK_THRESHOLD must not be negative")
	}
	if cfg.MutationCacheSize <= 0 {
		return cfg, fmt.Errorf("config: WAREHOUSE_MUTATION_CACHE_SIZE must be positive")
	}
	return cfg, nil
}

// LoadStorefront reads the storefront configuration.
func LoadStorefront() (Storefront, error) {
	var cfg Storefront
	defaults := map[string]any{
		"STOREFRONT_HTTP_ADDR":          ":8080",
		"STOREFRONT_WAREHOUSE_URL":      "http://localhost:8081",
		"STOREFRONT_WAREHOUSE_TIMEOUT":  "5s",
		"STOREFRONT_DB_PATH":            "./data/storefront.db",
		"STOREFRONT_RESERVATION_MODE":   ReservationModeHold,
		"STOREFRONT_HOLD_TTL":           "2m",
		"STOREFRONT_RECONCILE_INTERVAL": "1m",
		"STOREFRONT_RECONCILE_GRACE":    "30s",
		"REDIS_ADDR":                    "",
		"STOREFRONT_PRODUCT_CACHE_TTL":  "30s",
		"STOREFRONT_DEDUPE_TTL":         "24h",
		"RABBITMQ_URL":                  "",
		"STOREFRONT_CONSUMER_PREFETCH":  16,
		"OTEL_SERVICE_NAME":             "storefront-service",
	}
	if err := load(&cfg, defaults); err != nil {
		return cfg, err
	}

	cfg.ReservationMode = strings.ToLower(cfg.ReservationMode)
	if cfg.ReservationMode != ReservationModeHold && cfg.ReservationMode != ReservationModeDirect {
		return cfg, fmt.Errorf("config: STOREFRONT_RESERVATION_MODE must be %q or %q, got %q",
			ReservationModeHold, ReservationModeDirect, cfg.ReservationMode)
	}
	if cfg.WarehouseTimeout <= 0 {
		return cfg, fmt.Errorf("config: STOREFRONT_WAREHOUSE_TIMEOUT must be positive")
	}
	if cfg.ReconcileInterval <= 0 {
		return cfg, fmt.Errorf("config: STOREFRONT_RECONCILE_INTERVAL must be positive")
	}
	return cfg, nil
}

func load(cfg any, defaults map[string]any) error {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for k, val := range telemetryDefaults {
		v.SetDefault(k, val)
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := bindEnvs(v, reflect.TypeOf(cfg).Elem()); err != nil {
		return err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// bindEnvs walks the struct, descending into squashed embedded structs.
func bindEnvs(v *viper.Viper, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if field.Anonymous && strings.Contains(tag, "squash") {
			if err := bindEnvs(v, field.Type); err != nil {
				return err
			}
			continue
		}
		if tag == "" {
			continue
		}
		if err := v.BindEnv(tag); err != nil {
			return fmt.Errorf("config: bind env %s: %w", tag, err)
		}
	}
	return nil
}
