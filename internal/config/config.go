package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	CurrencyCode     string
	ShippingBase     decimal.Decimal
	MigrateOnStart   bool
	CatalogCacheTTL  time.Duration
	AnalyticsTTL     time.Duration
	AnalyticsRange   time.Duration
	IdempotencyTTL   time.Duration
	DefaultPageSize  int
	MaxPageSize      int
	RateLimitWindow  time.Duration
	RateLimitMax     int
	WebhookTimeout   time.Duration
	WebhookBackoff   time.Duration
	WebhookAttempts  int
	WebhookEnabled   bool
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	MaxBodyBytes     int64
	SecurityHeaders  bool
	AuditEnabled     bool
	AuditSampling    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "PEN"),
		ShippingBase:       parseDecimal(k.String("SHIPPING_BASE_PRICE"), "5"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		AnalyticsTTL:       parseDuration(k.String("ANALYTICS_CACHE_TTL"), "10m"),
		AnalyticsRange:     parseDuration(k.String("ANALYTICS_DEFAULT_RANGE"), "720h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		DefaultPageSize:    intOrDefault(k.Int("PAGE_SIZE_DEFAULT"), 20),
		MaxPageSize:        intOrDefault(k.Int("PAGE_SIZE_MAX"), 100),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       intOrDefault(k.Int("RATE_LIMIT_MAX"), 120),
		WebhookTimeout:     parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "10s"),
		WebhookBackoff:     parseDuration(k.String("WEBHOOK_BACKOFF_BASE"), "30s"),
		WebhookAttempts:    intOrDefault(k.Int("WEBHOOK_MAX_ATTEMPTS"), 6),
		WebhookEnabled:     parseBool(valueOrDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), "true")),
		LockTTL:            parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:   parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		MaxBodyBytes:       int64(intOrDefault(k.Int("MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders:    parseBool(valueOrDefault(k.String("SECURITY_HEADERS_ENABLED"), "true")),
		AuditEnabled:       parseBool(valueOrDefault(k.String("AUDIT_ENABLED"), "true")),
		AuditSampling:      parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ShippingBase.IsNegative() {
		return nil, errors.New("SHIPPING_BASE_PRICE must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}
