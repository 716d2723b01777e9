package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout groups the counters recorded by the checkout flow. A nil
// *Checkout is valid and records nothing.
type Checkout struct {
	Finalize  *prometheus.CounterVec
	Initiate  *prometheus.CounterVec
	VerifyMS  prometheus.Histogram
	Callbacks *prometheus.CounterVec
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	finalize := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartcart",
		Subsystem: "checkout",
		Name:      "finalize_total",
		Help:      "Order finalization attempts by outcome.",
	}, []string{"outcome"})
	initiate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartcart",
		Subsystem: "checkout",
		Name:      "initiate_total",
		Help:      "Checkout session creations by outcome.",
	}, []string{"outcome"})
	verify := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartcart",
		Subsystem: "payment",
		Name:      "verify_duration_ms",
		Help:      "Payment provider verification latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartcart",
		Subsystem: "payment",
		Name:      "callbacks_total",
		Help:      "Provider callbacks received by event type and result.",
	}, []string{"event", "result"})

	reg.MustRegister(finalize, initiate, verify, callbacks)
	return &Checkout{Finalize: finalize, Initiate: initiate, VerifyMS: verify, Callbacks: callbacks}
}

func (m *Checkout) Finalized(outcome string) {
	if m == nil {
		return
	}
	m.Finalize.WithLabelValues(outcome).Inc()
}

func (m *Checkout) Initiated(outcome string) {
	if m == nil {
		return
	}
	m.Initiate.WithLabelValues(outcome).Inc()
}

func (m *Checkout) ObserveVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyMS.Observe(float64(d.Milliseconds()))
}

func (m *Checkout) Callback(event, result string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(event, result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
