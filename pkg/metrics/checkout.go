package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of the order placement pipeline.
type CheckoutMetrics struct {
	duration      *prometheus.HistogramVec
	orders        *prometheus.CounterVec
	compensations prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_compensations_total",
		Help: "Orders rolled back after a failed payment intent.",
	})
	reg.MustRegister(duration, orders, compensations)
	return &CheckoutMetrics{
		duration:      duration,
		orders:        orders,
		compensations: compensations,
	}
}

// ObserveCheckout records one checkout attempt with its duration.
func (c *CheckoutMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
	c.orders.WithLabelValues(label).Inc()
}

// IncCompensation increments the compensation counter.
func (c *CheckoutMetrics) IncCompensation() {
	if c == nil || c.compensations == nil {
		return
	}
	c.compensations.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
