package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	CurrencyCode string

	// Payment providers.
	PaymentProvider        string
	PaymentIntentTTL       time.Duration
	PaymentCallbackBaseURL string
	StripeSecretKey        string
	StripeWebhookSecret    string
	PayPalClientID         string
	PayPalClientSecret     string
	PayPalWebhookSecret    string
	PayPalSandbox          bool
	RazorpayKeyID          string
	RazorpayKeySecret      string
	RazorpayWebhookSecret  string

	// Shipping quotes.
	QuoteCacheTTL      time.Duration
	ShippingOriginCity string

	// Pricing defaults.
	PlatformFeeBps        int
	VendorCommissionBps   int
	BundleGroupByCategory bool

	// Webhook / idempotency protection.
	WebhookReplayTTL time.Duration
	IdempotencyTTL   time.Duration
	SettleLockTTL    time.Duration

	// Outbound resilience.
	OutboundTimeout    time.Duration
	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	// Rate limiting for quote endpoints, in ulule/limiter notation (e.g. "60-M").
	QuoteRateLimit string

	// Payment status poll worker.
	PollDelay       time.Duration
	PollMaxAttempts int
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

		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		PaymentProvider:        strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "stripe")),
		PaymentIntentTTL:       parseDuration(k.String("PAYMENT_INTENT_TTL"), "15m"),
		PaymentCallbackBaseURL: strings.TrimSpace(k.String("PAYMENT_CALLBACK_BASE_URL")),
		StripeSecretKey:        k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:    k.String("STRIPE_WEBHOOK_SECRET"),
		PayPalClientID:         k.String("PAYPAL_CLIENT_ID"),
		PayPalClientSecret:     k.String("PAYPAL_CLIENT_SECRET"),
		PayPalWebhookSecret:    k.String("PAYPAL_WEBHOOK_SECRET"),
		PayPalSandbox:          parseBool(valueOrDefault(k.String("PAYPAL_SANDBOX"), "true")),
		RazorpayKeyID:          k.String("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:      k.String("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret:  k.String("RAZORPAY_WEBHOOK_SECRET"),

		QuoteCacheTTL:      parseDuration(k.String("QUOTE_CACHE_TTL"), "2m"),
		ShippingOriginCity: strings.TrimSpace(k.String("SHIPPING_ORIGIN_CITY")),

		PlatformFeeBps:        parseInt(k.String("PLATFORM_FEE_BPS"), 290),
		VendorCommissionBps:   parseInt(k.String("VENDOR_COMMISSION_BPS"), 1000),
		BundleGroupByCategory: parseBool(k.String("BUNDLE_GROUP_BY_CATEGORY")),

		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SettleLockTTL:    parseDuration(k.String("SETTLE_LOCK_TTL"), "30s"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinRequests: parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		QuoteRateLimit: valueOrDefault(k.String("QUOTE_RATE_LIMIT"), "60-M"),

		PollDelay:       parseDuration(k.String("PAYMENT_POLL_DELAY"), "30s"),
		PollMaxAttempts: parseInt(k.String("PAYMENT_POLL_MAX_ATTEMPTS"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if err := cfg.validateProviderCredentials(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validateProviderCredentials() error {
	switch c.PaymentProvider {
	case "stripe":
		if c.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	case "paypal":
		if c.PayPalClientID == "" || c.PayPalClientSecret == "" {
			return errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required when PAYMENT_PROVIDER=paypal")
		}
	case "razorpay":
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			return errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required when PAYMENT_PROVIDER=razorpay")
		}
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.PaymentProvider)
	}
	return nil
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

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
