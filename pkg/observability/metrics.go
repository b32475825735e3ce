// Package observability exposes Prometheus metrics and health endpoints
// for the session client and the tools built on it.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_turns_total",
			Help: "Total number of turns by transport mode and terminal outcome",
		},
		[]string{"mode", "outcome"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_turn_duration_seconds",
			Help:    "Turn duration from admission to terminal outcome in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	activeTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_active_turns",
			Help: "Number of turns currently in flight",
		},
	)

	// Stream metrics
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_stream_events_total",
			Help: "Total number of stream events dispatched by event type",
		},
		[]string{"type"},
	)

	// Session metrics
	sessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus collectors. Safe to call more
// than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			turnsTotal,
			turnDuration,
			activeTurns,
			streamEventsTotal,
			sessionsCreatedTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records one terminal turn.
func RecordTurn(mode, outcome string, duration time.Duration) {
	turnsTotal.WithLabelValues(mode, outcome).Inc()
	turnDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStreamEvent records one dispatched stream event.
func RecordStreamEvent(eventType string) {
	streamEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordSessionCreated records a new session.
func RecordSessionCreated() {
	sessionsCreatedTotal.Inc()
}

// IncActiveTurns increments the in-flight turn gauge.
func IncActiveTurns() {
	activeTurns.Inc()
}

// DecActiveTurns decrements the in-flight turn gauge.
func DecActiveTurns() {
	activeTurns.Dec()
}
