package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout collects submission metrics. A nil *Checkout records nothing.
type Checkout struct {
	calls    *prometheus.CounterVec
	results  *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "fulfillment",
		Name:      "calls_total",
		Help:      "Fulfillment calls by phase and outcome.",
	}, []string{"phase", "outcome"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Name:      "results_total",
		Help:      "Checkout submissions by final HTTP status.",
	}, []string{"status"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "checkout",
		Name:      "submission_duration_seconds",
		Help:      "Time from the first create call to the last submit call.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	reg.MustRegister(calls, results, duration)
	return &Checkout{calls: calls, results: results, duration: duration}
}

// ObserveCall counts one fulfillment call.
func (m *Checkout) ObserveCall(phase, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(phase, outcome).Inc()
}

// ObserveResult records the final status and duration of a submission.
func (m *Checkout) ObserveResult(status int, seconds float64) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(strconv.Itoa(status)).Inc()
	m.duration.Observe(seconds)
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
