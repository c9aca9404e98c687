// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcstrack/mcstrackd/internal/controller"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "mcstrack"
	subsystem = "controller"
)

// Label names for controller metrics.
const (
	labelPeer      = "peer"
	labelRole      = "role"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelResult    = "result"
	labelSeverity  = "severity"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Controller Metrics
// -------------------------------------------------------------------------

// Collector implements controller.MetricsReporter on top of Prometheus
// metric vectors.
//
// Metrics are designed for tracking-rig monitoring:
//   - Session transition counters record connection flaps for alerting.
//   - Exchange counters track per-peer request/response volume and errors.
//   - Series counters track correlator throughput.
//   - The tick histogram flags an overrunning driver loop.
type Collector struct {
	// SessionTransitions counts peer session FSM transitions, labeled with
	// the old and new status for precise alerting (e.g. connected->connecting).
	SessionTransitions *prometheus.CounterVec

	// ConnectAttempts counts websocket dial attempts per peer.
	ConnectAttempts *prometheus.CounterVec

	// Exchanges counts websocket exchanges per peer, labeled ok/error.
	Exchanges *prometheus.CounterVec

	// SeriesSubmitted counts request series queued per peer.
	SeriesSubmitted *prometheus.CounterVec

	// SeriesClaimed counts response series consumed per peer.
	SeriesClaimed *prometheus.CounterVec

	// StatusMessages counts status messages by severity.
	StatusMessages *prometheus.CounterVec

	// TickDuration observes the wall time of each controller tick.
	TickDuration prometheus.Histogram
}

// NewCollector creates a Collector with all controller metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "mcstrack_controller_" prefix to avoid collisions
// with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionTransitions,
		c.ConnectAttempts,
		c.Exchanges,
		c.SeriesSubmitted,
		c.SeriesClaimed,
		c.StatusMessages,
		c.TickDuration,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_transitions_total",
			Help:      "Total peer session state machine transitions.",
		}, []string{labelPeer, labelRole, labelFromState, labelToState}),

		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_attempts_total",
			Help:      "Total websocket dial attempts.",
		}, []string{labelPeer}),

		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exchanges_total",
			Help:      "Total websocket request/response exchanges.",
		}, []string{labelPeer, labelResult}),

		SeriesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "series_submitted_total",
			Help:      "Total request series queued for transmission.",
		}, []string{labelPeer}),

		SeriesClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "series_claimed_total",
			Help:      "Total response series consumed by the core.",
		}, []string{labelPeer}),

		StatusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_messages_total",
			Help:      "Total status messages harvested from peers.",
		}, []string{labelSeverity}),

		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one controller tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

// -------------------------------------------------------------------------
// controller.MetricsReporter
// -------------------------------------------------------------------------

// RecordSessionTransition increments the transition counter for one peer
// session status change.
func (c *Collector) RecordSessionTransition(
	label string,
	role controller.Role,
	from, to controller.SessionStatus,
) {
	c.SessionTransitions.WithLabelValues(label, string(role), from.String(), to.String()).Inc()
}

// RecordConnectAttempt increments the dial attempt counter for the peer.
func (c *Collector) RecordConnectAttempt(label string) {
	c.ConnectAttempts.WithLabelValues(label).Inc()
}

// RecordExchange increments the exchange counter with an ok/error result
// label.
func (c *Collector) RecordExchange(label string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	c.Exchanges.WithLabelValues(label, result).Inc()
}

// RecordSeriesSubmitted increments the submitted counter for the peer.
func (c *Collector) RecordSeriesSubmitted(label string) {
	c.SeriesSubmitted.WithLabelValues(label).Inc()
}

// RecordSeriesClaimed increments the claimed counter for the peer.
func (c *Collector) RecordSeriesClaimed(label string) {
	c.SeriesClaimed.WithLabelValues(label).Inc()
}

// RecordStatusMessage increments the status message counter for a severity.
func (c *Collector) RecordStatusMessage(severity string) {
	c.StatusMessages.WithLabelValues(severity).Inc()
}

// RecordTick observes one tick duration.
func (c *Collector) RecordTick(elapsed time.Duration) {
	c.TickDuration.Observe(elapsed.Seconds())
}
