package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingComputeTotal counts pricing engine invocations by outcome.
	PricingComputeTotal *prometheus.CounterVec
	// PricingRuleWarnings counts promotion rules skipped as malformed.
	PricingRuleWarnings prometheus.Counter
	// SalesCreatedTotal counts recorded sales by initial status.
	SalesCreatedTotal *prometheus.CounterVec
	// StockRejectedTotal counts sales rejected for insufficient stock.
	StockRejectedTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_compute_total",
			Help:      "Count of pricing engine computations by outcome.",
		}, []string{"result"})
		PricingRuleWarnings = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_rule_warnings_total",
			Help:      "Count of promotion rules skipped as malformed during pricing.",
		})
		SalesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_created_total",
			Help:      "Count of sales recorded by initial status.",
		}, []string{"status"})
		StockRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_stock_rejected_total",
			Help:      "Count of sales rejected because of insufficient variant stock.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		registerDomainCollector(reg, PricingComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingComputeTotal = v
			}
		})
		registerDomainCollector(reg, PricingRuleWarnings, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PricingRuleWarnings = v
			}
		})
		registerDomainCollector(reg, SalesCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SalesCreatedTotal = v
			}
		})
		registerDomainCollector(reg, StockRejectedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockRejectedTotal = v
			}
		})
		registerDomainCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		registerDomainCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
	})
}

func registerDomainCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
