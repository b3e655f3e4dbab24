package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's prometheus collectors. The zero registerer case
// is handled by NewMetrics so tests can pass a fresh registry.
type Metrics struct {
	wsConnections  prometheus.Gauge
	activeSessions prometheus.Gauge
	wsMessages     *prometheus.CounterVec
	wsErrors       *prometheus.CounterVec
	finalized      *prometheus.CounterVec
	saveFailures   prometheus.Counter
	saveLatency    prometheus.Histogram
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "websocket",
		Name:      "connections",
		Help:      "Currently registered websocket connections.",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "focus",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Sessions between session_start and finalization.",
	})
	wsMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Inbound messages by type.",
	}, []string{"type"})
	wsErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "websocket",
		Name:      "errors_total",
		Help:      "Dropped inbound messages and failed sends.",
	}, []string{"error_type"})
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "sessions",
		Name:      "finalized_total",
		Help:      "Finalized sessions by how they were closed.",
	}, []string{"reason"})
	saveFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "focus",
		Subsystem: "store",
		Name:      "save_failures_total",
	})
	saveLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "focus",
		Subsystem: "store",
		Name:      "save_seconds",
		Buckets:   prometheus.DefBuckets,
	})
	registerer.MustRegister(wsConnections, activeSessions, wsMessages, wsErrors, finalized, saveFailures, saveLatency)

	return &Metrics{
		wsConnections:  wsConnections,
		activeSessions: activeSessions,
		wsMessages:     wsMessages,
		wsErrors:       wsErrors,
		finalized:      finalized,
		saveFailures:   saveFailures,
		saveLatency:    saveLatency,
	}
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Inc()
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Dec()
}

func (m *Metrics) IncrementWebSocketMessages(msgType string) {
	m.wsMessages.WithLabelValues(msgType).Inc()
}

// IncrementWebSocketErrors counts malformed, unknown and undeliverable
// messages.
func (m *Metrics) IncrementWebSocketErrors(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

func (m *Metrics) SessionFinalized(reason string) {
	m.activeSessions.Dec()
	m.finalized.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSave(d time.Duration, err error) {
	m.saveLatency.Observe(d.Seconds())
	if err != nil {
		m.saveFailures.Inc()
	}
}
