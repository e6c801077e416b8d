// Package metrics defines the Prometheus instrumentation surfaced by a
// handshake driven through this module. It does not hook into
// handshake.Driver directly — a caller (cmd/tls13client, or any other
// embedder) observes Driver.Step's returned Event/error and reports
// through the package-level functions below, the same way caddy's own
// HTTP handlers report into its admin metrics from outside the thing
// being measured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	initHandshakeMetrics()
}

var handshakeMetrics = struct {
	started   prometheus.Counter
	completed prometheus.Counter
	aborted   *prometheus.CounterVec
	duration  prometheus.Histogram

	helloRetryRequests prometheus.Counter
	modeSelected       *prometheus.CounterVec
	earlyData          *prometheus.CounterVec
	ticketsReceived    prometheus.Counter
}{}

func initHandshakeMetrics() {
	const ns = "tls13client"
	const sub = "handshake"

	handshakeMetrics.started = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "started_total",
		Help:      "Count of handshakes started.",
	})
	handshakeMetrics.completed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "completed_total",
		Help:      "Count of handshakes that reached StateHandshakeOver.",
	})
	handshakeMetrics.aborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "aborted_total",
		Help:      "Count of handshakes aborted, labeled by the alert kind that ended them.",
	}, []string{"alert"})
	handshakeMetrics.duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of completed handshakes.",
		Buckets:   prometheus.DefBuckets,
	})

	handshakeMetrics.helloRetryRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "hello_retry_requests_total",
		Help:      "Count of HelloRetryRequest messages received.",
	})
	handshakeMetrics.modeSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "mode_selected_total",
		Help:      "Count of handshakes completed per negotiated key-exchange mode.",
	}, []string{"mode"})
	handshakeMetrics.earlyData = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "early_data_total",
		Help:      "Count of 0-RTT attempts, labeled by outcome.",
	}, []string{"outcome"})
	handshakeMetrics.ticketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "tickets_received_total",
		Help:      "Count of NewSessionTicket messages processed.",
	})
}

// HandshakeStarted records the beginning of a new handshake attempt.
func HandshakeStarted() { handshakeMetrics.started.Inc() }

// HandshakeCompleted records a handshake that reached StateHandshakeOver,
// along with the negotiated mode ("psk", "psk_dhe", or "dhe") and its
// wall-clock duration.
func HandshakeCompleted(mode string, durationSeconds float64) {
	handshakeMetrics.completed.Inc()
	handshakeMetrics.modeSelected.WithLabelValues(mode).Inc()
	handshakeMetrics.duration.Observe(durationSeconds)
}

// HandshakeAborted records a handshake that ended in a fatal alert.
func HandshakeAborted(alertKind string) {
	handshakeMetrics.aborted.WithLabelValues(alertKind).Inc()
}

// HelloRetryRequestReceived records one HelloRetryRequest.
func HelloRetryRequestReceived() { handshakeMetrics.helloRetryRequests.Inc() }

// EarlyDataOutcome records a 0-RTT attempt's resolution: "accepted",
// "rejected", or "not_attempted".
func EarlyDataOutcome(outcome string) {
	handshakeMetrics.earlyData.WithLabelValues(outcome).Inc()
}

// TicketReceived records one NewSessionTicket processed by
// handshake.Driver.ProcessNewSessionTicket.
func TicketReceived() { handshakeMetrics.ticketsReceived.Inc() }
