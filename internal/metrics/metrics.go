package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of the messaging core. A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeConnections prometheus.Gauge
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	droppedEvents     prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wirechat_active_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_operations_total",
				Help: "Total number of messaging operations by result",
			},
			[]string{"op", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wirechat_operation_duration_seconds",
				Help:    "Messaging operation duration in seconds, persistence included",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		droppedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_dropped_events_total",
				Help: "Outbound events dropped because a connection buffer was full",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeConnections,
			m.operationsTotal,
			m.operationDuration,
			m.droppedEvents,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// ObserveOperation records the outcome and latency of op.
func (m *Metrics) ObserveOperation(op string, err error, started time.Time) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
	m.operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
