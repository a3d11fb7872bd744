// Package metrics implements the observable counters, gauges and
// histogram from spec §4.9 on top of github.com/prometheus/client_golang,
// exposed to the HTTP surface via promhttp (spec §6.2 GET /metrics).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric spec §4.9 names. It is not a global: each
// New call builds an independent registry, and the gateway process builds
// one and injects it into every component that observes it.
type Registry struct {
	reg *prometheus.Registry

	QuotesProcessed    *prometheus.CounterVec
	ConnectionErrors    *prometheus.CounterVec
	Reconnections       *prometheus.CounterVec
	RestBackfills       *prometheus.CounterVec
	QueueBlockingEvents prometheus.Counter
	DuplicatesFiltered  prometheus.Counter

	ActiveConnections *prometheus.GaugeVec
	QueueDepthClosed  *prometheus.GaugeVec
	QueueDepthOpen    *prometheus.GaugeVec
	BreakerState      *prometheus.GaugeVec

	QuoteLatency *prometheus.HistogramVec
}

// New builds a Registry with every spec §4.9 metric registered under a
// fresh prometheus.Registry (never the global DefaultRegisterer, so tests
// and multiple gateway instances in one process don't collide).
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		QuotesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_processed_total",
			Help: "Candles normalised and offered to a session queue.",
		}, []string{"exchange", "contract_type", "is_closed"}),

		ConnectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_errors_total",
			Help: "Upstream connection errors by taxonomy code.",
		}, []string{"exchange", "kind"}),

		Reconnections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconnections_total",
			Help: "Upstream WebSocket reconnect attempts.",
		}, []string{"exchange"}),

		RestBackfills: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rest_backfills_total",
			Help: "Inactivity-triggered REST backfill calls by outcome.",
		}, []string{"exchange", "outcome"}),

		QueueBlockingEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_blocking_events_total",
			Help: "Producer block-timeout expirations on the closed-candle FIFO.",
		}),

		DuplicatesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "duplicates_filtered_total",
			Help: "Closed candles suppressed by the deduplicator.",
		}),

		ActiveConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Live upstream sessions per (exchange, contract_type).",
		}, []string{"exchange", "contract_type"}),

		QueueDepthClosed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth_closed",
			Help: "Current closed-candle FIFO depth per session.",
		}, []string{"exchange", "contract_type"}),

		QueueDepthOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth_open",
			Help: "Current open-candle LIFO depth per session.",
		}, []string{"exchange", "contract_type"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "0=closed, 1=open, 2=half_open.",
		}, []string{"exchange", "contract_type"}),

		QuoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quote_latency_seconds",
			Help:    "Wall-clock interval from frame receipt to enqueue-on-last-subscriber.",
			Buckets: prometheus.DefBuckets,
		}, []string{"exchange", "contract_type"}),
	}
}

// Handler returns the promhttp handler for this registry's /metrics route.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// boolLabel renders a bool as the "is_closed" label value.
func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ObserveQuote records a normalised candle offered to a session queue.
func (r *Registry) ObserveQuote(exchange, contractType string, isClosed bool) {
	r.QuotesProcessed.WithLabelValues(exchange, contractType, boolLabel(isClosed)).Inc()
}

// ObserveConnectionError records a taxonomised connection error.
func (r *Registry) ObserveConnectionError(exchange, kind string) {
	r.ConnectionErrors.WithLabelValues(exchange, kind).Inc()
}

// ObserveReconnection records one reconnect attempt for exchange.
func (r *Registry) ObserveReconnection(exchange string) {
	r.Reconnections.WithLabelValues(exchange).Inc()
}

// ObserveRestBackfill records a backfill attempt outcome ("success" or "failure").
func (r *Registry) ObserveRestBackfill(exchange, outcome string) {
	r.RestBackfills.WithLabelValues(exchange, outcome).Inc()
}

// SetActiveConnections sets the live session gauge for (exchange, contractType).
func (r *Registry) SetActiveConnections(exchange, contractType string, n int) {
	r.ActiveConnections.WithLabelValues(exchange, contractType).Set(float64(n))
}

// SetQueueDepth sets the closed/open depth gauges for one session.
func (r *Registry) SetQueueDepth(exchange, contractType string, closedDepth, openDepth int) {
	r.QueueDepthClosed.WithLabelValues(exchange, contractType).Set(float64(closedDepth))
	r.QueueDepthOpen.WithLabelValues(exchange, contractType).Set(float64(openDepth))
}

// SetBreakerState sets the breaker state gauge: 0=closed, 1=open, 2=half_open.
func (r *Registry) SetBreakerState(exchange, contractType string, state int) {
	r.BreakerState.WithLabelValues(exchange, contractType).Set(float64(state))
}

// ObserveQuoteLatency records the frame-receipt-to-last-enqueue interval.
func (r *Registry) ObserveQuoteLatency(exchange, contractType string, seconds float64) {
	r.QuoteLatency.WithLabelValues(exchange, contractType).Observe(seconds)
}
