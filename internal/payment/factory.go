package payment

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Caqil/oncart-backend/internal/config"
	"github.com/Caqil/oncart-backend/internal/resilience"
)

// BuildProviders constructs every provider that has credentials configured.
// The map is keyed by provider name as it appears in webhook URLs.
func BuildProviders(cfg config.Config) (map[string]Provider, error) {
	httpClient := func(target string) resilience.HTTPClient {
		return resilience.HTTPClient{
			Client:      &http.Client{Timeout: cfg.OutboundTimeout},
			Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget(target),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.OutboundTimeout,
		}
	}

	providers := make(map[string]Provider)
	if cfg.StripeSecretKey != "" {
		providers["stripe"] = Stripe{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			HTTP:          httpClient("stripe"),
		}
	}
	if cfg.PayPalClientID != "" {
		providers["paypal"] = &PayPal{
			ClientID:      cfg.PayPalClientID,
			ClientSecret:  cfg.PayPalClientSecret,
			WebhookSecret: cfg.PayPalWebhookSecret,
			Sandbox:       cfg.PayPalSandbox,
			HTTP:          httpClient("paypal"),
		}
	}
	if cfg.RazorpayKeyID != "" {
		providers["razorpay"] = Razorpay{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
			HTTP:          httpClient("razorpay"),
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no payment provider configured")
	}
	if _, ok := providers[strings.ToLower(cfg.PaymentProvider)]; !ok {
		return nil, fmt.Errorf("default payment provider %q has no credentials", cfg.PaymentProvider)
	}
	return providers, nil
}
