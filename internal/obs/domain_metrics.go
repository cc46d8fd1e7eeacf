package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ShippingQuoteTotal counts shipping quote computations.
	ShippingQuoteTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentRefundTotal counts refund attempts.
	PaymentRefundTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentPollTotal counts uncertain-payment poll resolutions.
	PaymentPollTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ShippingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_total",
			Help:      "Count of shipping quote computations by outcome.",
		}, []string{"result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})
		PaymentRefundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_refund_total",
			Help:      "Count of refund processing outcomes.",
		}, []string{"provider", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		PaymentPollTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_total",
			Help:      "Count of payment status poll outcomes.",
		}, []string{"provider", "result"})

		for _, c := range []**prometheus.CounterVec{
			&ShippingQuoteTotal,
			&PaymentIntentTotal,
			&PaymentRefundTotal,
			&PaymentWebhookTotal,
			&PaymentPollTotal,
		} {
			mustRegisterCollector(reg, c)
		}
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector **prometheus.CounterVec) {
	if err := reg.Register(*collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				*collector = existing
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
