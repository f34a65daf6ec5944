// Package metrics defines the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/teamsync/internal/storage"
)

const namespace = "teamsync"

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds every collector. A nil *Metrics records nothing, so callers
// that run without metrics need no checks.
type Metrics struct {
	gatherer prometheus.Gatherer

	txAttempts    *prometheus.CounterVec
	rpcRequests   *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
	subscriptions *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		txAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "tx_attempts_total",
			Help:      "Transaction attempts by outcome.",
		}, []string{"outcome"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPCs handled, by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency of unary RPCs and lifetime of streams.",
			Buckets:   latencyBuckets,
		}, []string{"procedure"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscriptions",
			Help:      "Open live views by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.txAttempts, m.rpcRequests, m.rpcLatency, m.subscriptions)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// TxObserver returns a storage.TxObserver counting attempts.
func (m *Metrics) TxObserver() storage.TxObserver {
	if m == nil {
		return nil
	}
	return func(o storage.Outcome) {
		m.txAttempts.WithLabelValues(string(o)).Inc()
	}
}

// ObserveRPC records one finished RPC.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcLatency.WithLabelValues(procedure).Observe(d.Seconds())
}

// Subscribed counts an open live view of kind. Call the returned func
// once when it closes.
func (m *Metrics) Subscribed(kind string) (done func()) {
	if m == nil {
		return func() {}
	}
	g := m.subscriptions.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}
