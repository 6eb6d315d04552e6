package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ---- Gossip ----
	MessagesOriginated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "messages_originated_total",
			Help:      "Messages originated by this peer.",
		},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "messages_received_total",
			Help:      "Inbound message deliveries by outcome (accepted, duplicate, self, invalid).",
		},
		[]string{"result"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "deliveries_total",
			Help:      "Outbound fan-out delivery attempts by outcome.",
		},
		[]string{"result"},
	)

	DeliveriesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "deliveries_in_flight",
			Help:      "Fan-out deliveries currently waiting on the transport.",
		},
	)

	PeersKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "peers_known",
			Help:      "Entries in the peer directory.",
		},
	)

	PeersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "peers_online",
			Help:      "Directory entries currently considered reachable.",
		},
	)

	// ---- HTTP ----
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatter",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatter",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "chatter",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesOriginated, MessagesReceived, Deliveries, DeliveriesInFlight,
		PeersKnown, PeersOnline,
		RequestsTotal, RequestDuration, InFlight, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup with the CLI version.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	r.Post("/v1/messages", telemetry.Instrument("receive", http.HandlerFunc(n.ReceiveMessage)).ServeHTTP)
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
