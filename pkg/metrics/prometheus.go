// Package metrics provides Prometheus metrics for the slice ingestion pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode durations are short; buckets start at 100µs.
var defaultBuckets = prometheus.ExponentialBuckets(0.0001, 4, 10) //nolint:gochecknoglobals // shared default

// Manager owns the pipeline collectors on a private registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	slicesDecoded  prometheus.Counter
	slicesRejected *prometheus.CounterVec
	decodeDuration prometheus.Histogram
	batchSize      prometheus.Gauge
	batchesTotal   prometheus.Counter
	batchDuration  prometheus.Histogram
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// collectors live on a fresh registry, never the global default.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "slicestack",
		subsystem:        "ingest",
		histogramBuckets: defaultBuckets,
		enabled:          true,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.slicesDecoded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "slices_decoded_total",
		Help:      "Total number of slices accepted by the decoder",
	})

	m.slicesRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "slices_rejected_total",
			Help:      "Total number of inputs rejected as invalid or malformed",
		},
		[]string{"reason"},
	)

	m.decodeDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decode_duration_seconds",
		Help:      "Time spent decoding a single input",
		Buckets:   m.histogramBuckets,
	})

	m.batchSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_size",
		Help:      "Number of inputs in the most recent batch",
	})

	m.batchesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_total",
		Help:      "Total number of batches ordered",
	})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_duration_seconds",
		Help:      "Wall time from first decode to ordered stack",
		Buckets:   prometheus.DefBuckets,
	})
}

// RecordDecoded counts one accepted slice.
func (m *Manager) RecordDecoded() {
	if !m.enabled {
		return
	}
	m.slicesDecoded.Inc()
}

// RecordRejected counts one rejected input under the given reason label.
func (m *Manager) RecordRejected(reason string) {
	if !m.enabled {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.slicesRejected.WithLabelValues(reason).Inc()
}

// ObserveDecodeDuration records how long a single decode took.
func (m *Manager) ObserveDecodeDuration(d time.Duration) {
	if !m.enabled {
		return
	}
	m.decodeDuration.Observe(d.Seconds())
}

// ObserveBatch records a finished batch of size inputs.
func (m *Manager) ObserveBatch(size int, d time.Duration) {
	if !m.enabled {
		return
	}
	m.batchSize.Set(float64(size))
	m.batchesTotal.Inc()
	m.batchDuration.Observe(d.Seconds())
}

// Registry returns the registry the collectors are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metric values to path in the text
// exposition format, for node_exporter's textfile collector.
func (m *Manager) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return nil
}
