// Package metrics exposes protocol counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "monitortcp",
			Name:      "sessions",
			Help:      "Connected peers.",
		},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "monitortcp",
			Subsystem: "proto",
			Name:      "packets_total",
			Help:      "Packets dispatched to a handler.",
		},
		[]string{"kind"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "monitortcp",
			Subsystem: "proto",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in packet handlers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "monitortcp",
			Subsystem: "proto",
			Name:      "responses_total",
			Help:      "Response frames queued, by request kind and status.",
		},
		[]string{"kind", "status"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "monitortcp",
			Subsystem: "proto",
			Name:      "framing_errors_total",
			Help:      "Connections closed for a malformed stream.",
		},
		[]string{"reason"},
	)
	repeatFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "monitortcp",
			Subsystem: "repeat",
			Name:      "frames_total",
			Help:      "Frames produced by read_repeat streams.",
		},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessions, packets, handlerDuration, responses, framingErrors, repeatFrames)
	})
}

func SessionOpened() {
	sessions.Inc()
}

func SessionClosed() {
	sessions.Dec()
}

func RecordPacket(kind string, d time.Duration) {
	packets.WithLabelValues(kind).Inc()
	handlerDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func RecordResponse(kind, status string) {
	responses.WithLabelValues(kind, status).Inc()
}

func RecordFramingError(reason string) {
	framingErrors.WithLabelValues(reason).Inc()
}

func RecordRepeatFrame() {
	repeatFrames.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
