package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame flow counters
	FramesPublished atomic.Uint64
	FramesDelivered atomic.Uint64
	FramesSkipped   atomic.Uint64
	BytesStreamed   atomic.Uint64

	// Error counters
	PublishErrors atomic.Uint64
	WriteErrors   atomic.Uint64

	// Stream client tracking
	ActiveStreams atomic.Uint64
	StreamsTotal  atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_frames_published_total",
			Help: "Total frames published to the frame sink",
		},
		func() float64 { return float64(m.FramesPublished.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_frames_delivered_total",
			Help: "Total frames delivered to streaming clients",
		},
		func() float64 { return float64(m.FramesDelivered.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_frames_skipped_total",
			Help: "Total frames skipped by clients that fell behind",
		},
		func() float64 { return float64(m.FramesSkipped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_bytes_streamed_total",
			Help: "Total JPEG bytes written to streaming clients",
		},
		func() float64 { return float64(m.BytesStreamed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_publish_errors_total",
			Help: "Total frame source errors",
		},
		func() float64 { return float64(m.PublishErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_write_errors_total",
			Help: "Total stream write failures (client disconnects)",
		},
		func() float64 { return float64(m.WriteErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_active_clients",
			Help: "Number of active streaming clients",
		},
		func() float64 { return float64(m.ActiveStreams.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streaming_total_clients",
			Help: "Total streaming clients connected",
		},
		func() float64 { return float64(m.StreamsTotal.Load()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
