// Package metrics provides custom Prometheus metrics for the GenreNet-Go service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tphakala/genrenet-go/internal/errors"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// GenreNetMetrics contains all Prometheus metrics related to model loading,
// inference and upload handling. All methods are safe to call on a nil
// receiver so components can run without metrics.
type GenreNetMetrics struct {
	PredictionTotal    *prometheus.CounterVec
	PredictionErrors   *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	ModelInvokeTotal   prometheus.Counter

	ModelLoadTotal    *prometheus.CounterVec
	ModelLoadDuration *prometheus.HistogramVec
	ModelLoadedGauge  prometheus.Gauge

	RemoteRequestTotal    *prometheus.CounterVec
	RemoteRequestDuration prometheus.Histogram

	ActiveRequestsGauge prometheus.Gauge
	UploadBytes         prometheus.Histogram
	CleanupErrors       prometheus.Counter
	ValidationRejects   prometheus.Counter
}

// NewGenreNetMetrics creates the metrics and registers them with registry.
func NewGenreNetMetrics(registry *prometheus.Registry) (*GenreNetMetrics, error) {
	m := &GenreNetMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register GenreNet metrics: %w", err)
	}
	return m, nil
}

func (m *GenreNetMetrics) initMetrics() {
	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrenet_predictions_total",
			Help: "Total number of prediction requests partitioned by outcome.",
		},
		[]string{"status"},
	)
	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrenet_prediction_errors_total",
			Help: "Total number of failed prediction requests partitioned by error category.",
		},
		[]string{"category"},
	)
	m.PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "genrenet_prediction_duration_seconds",
			Help:    "End-to-end time of successful prediction requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)
	m.ModelInvokeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genrenet_model_invocations_total",
			Help: "Total number of classifier invocations (one per analysis window).",
		},
	)

	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrenet_model_load_total",
			Help: "Total number of model load attempts.",
		},
		[]string{"backend", "status"},
	)
	m.ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genrenet_model_load_duration_seconds",
			Help:    "Time taken to load the classification model.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"backend"},
	)
	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "genrenet_model_loaded",
			Help: "Whether the classification model is currently loaded (1) or not (0).",
		},
	)

	m.RemoteRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrenet_remote_requests_total",
			Help: "Total number of requests sent to the remote inference API.",
		},
		[]string{"code"},
	)
	m.RemoteRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "genrenet_remote_request_duration_seconds",
			Help:    "Latency of requests to the remote inference API.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	m.ActiveRequestsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "genrenet_active_requests",
			Help: "Number of prediction requests currently in flight.",
		},
	)
	m.UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "genrenet_upload_bytes",
			Help:    "Size of staged uploads in bytes.",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8), // 64KiB to 1GiB
		},
	)
	m.CleanupErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genrenet_cleanup_errors_total",
			Help: "Total number of staged files that could not be removed.",
		},
	)
	m.ValidationRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genrenet_validation_rejections_total",
			Help: "Total number of uploads rejected before staging.",
		},
	)
}

// RecordPrediction records the outcome of one prediction request.
func (m *GenreNetMetrics) RecordPrediction(duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PredictionTotal.WithLabelValues(StatusError).Inc()
		m.PredictionErrors.WithLabelValues(categoryLabel(err)).Inc()
		if errors.IsCategory(err, errors.CategoryValidation) {
			m.ValidationRejects.Inc()
		}
		return
	}
	m.PredictionTotal.WithLabelValues(StatusSuccess).Inc()
	m.PredictionDuration.Observe(duration.Seconds())
}

func categoryLabel(err error) string {
	if category := errors.CategoryOf(err); category != "" {
		return string(category)
	}
	return "unknown"
}

// RecordModelInvoke counts a single classifier invocation.
func (m *GenreNetMetrics) RecordModelInvoke() {
	if m == nil {
		return
	}
	m.ModelInvokeTotal.Inc()
}

// RecordModelLoad records a model load attempt for backend.
func (m *GenreNetMetrics) RecordModelLoad(backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(backend, StatusError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(backend, StatusSuccess).Inc()
	m.ModelLoadDuration.WithLabelValues(backend).Observe(duration.Seconds())
	m.ModelLoadedGauge.Set(1)
}

// SetModelLoaded sets the model loaded gauge.
func (m *GenreNetMetrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoadedGauge.Set(1)
	} else {
		m.ModelLoadedGauge.Set(0)
	}
}

// RecordRemoteRequest records a remote inference API call. code is the HTTP
// status code, or "error" when no response was received.
func (m *GenreNetMetrics) RecordRemoteRequest(code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RemoteRequestTotal.WithLabelValues(code).Inc()
	m.RemoteRequestDuration.Observe(duration.Seconds())
}

// RequestStarted increments the in-flight request gauge. The returned function
// decrements it.
func (m *GenreNetMetrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRequestsGauge.Inc()
	return m.ActiveRequestsGauge.Dec
}

// RecordUpload records the size of a staged upload.
func (m *GenreNetMetrics) RecordUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(size))
}

// RecordCleanupError counts a staged file that could not be released.
func (m *GenreNetMetrics) RecordCleanupError() {
	if m == nil {
		return
	}
	m.CleanupErrors.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *GenreNetMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionTotal.Describe(ch)
	m.PredictionErrors.Describe(ch)
	ch <- m.PredictionDuration.Desc()
	ch <- m.ModelInvokeTotal.Desc()

	m.ModelLoadTotal.Describe(ch)
	m.ModelLoadDuration.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()

	m.RemoteRequestTotal.Describe(ch)
	ch <- m.RemoteRequestDuration.Desc()

	ch <- m.ActiveRequestsGauge.Desc()
	ch <- m.UploadBytes.Desc()
	ch <- m.CleanupErrors.Desc()
	ch <- m.ValidationRejects.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *GenreNetMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionTotal.Collect(ch)
	m.PredictionErrors.Collect(ch)
	ch <- m.PredictionDuration
	ch <- m.ModelInvokeTotal

	m.ModelLoadTotal.Collect(ch)
	m.ModelLoadDuration.Collect(ch)
	ch <- m.ModelLoadedGauge

	m.RemoteRequestTotal.Collect(ch)
	ch <- m.RemoteRequestDuration

	ch <- m.ActiveRequestsGauge
	ch <- m.UploadBytes
	ch <- m.CleanupErrors
	ch <- m.ValidationRejects
}
