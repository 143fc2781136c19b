package smartfetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the fetch lifecycle. All
// record methods are nil-safe so a disabled collector costs a nil check.
type MetricsCollector struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  *prometheus.GaugeVec
	dedupHits     *prometheus.CounterVec
	pollsTotal    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	overrides     prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, letting tests isolate metric state.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		runsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartfetch_runs_total",
				Help: "Total number of settled runs",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		runDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartfetch_run_duration_seconds",
				Help:    "Duration of runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		runsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smartfetch_runs_in_flight",
				Help: "Number of runs currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartfetch_deduplication_hits_total",
				Help: "Total number of runs that joined an in-flight call",
			},
			[]string{"method", "endpoint"},
		),
		pollsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartfetch_polls_scheduled_total",
				Help: "Total number of scheduled poll ticks",
			},
			[]string{"endpoint"},
		),
		cancellations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartfetch_cancellations_total",
				Help: "Total number of instance-initiated cancellations",
			},
			[]string{"method", "endpoint"},
		),
		overrides: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "smartfetch_safe_result_overrides_total",
				Help: "Total number of safe result overrides",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartfetch_errors_total",
				Help: "Total number of recorded run failures",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// RecordRun records a settled run's count and duration.
func (mc *MetricsCollector) RecordRun(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.runsTotal.WithLabelValues(method, code, endpoint).Inc()
	mc.runDuration.WithLabelValues(method, code, endpoint).Observe(duration.Seconds())
}

// RecordRunStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRunStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.runsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRunEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRunEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.runsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordDedupHit increments the de-duplication hit counter.
func (mc *MetricsCollector) RecordDedupHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.dedupHits.WithLabelValues(method, endpoint).Inc()
}

// RecordPollScheduled increments the scheduled poll counter.
func (mc *MetricsCollector) RecordPollScheduled(endpoint string) {
	if mc == nil {
		return
	}
	mc.pollsTotal.WithLabelValues(endpoint).Inc()
}

// RecordCancellation increments the cancellation counter.
func (mc *MetricsCollector) RecordCancellation(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cancellations.WithLabelValues(method, endpoint).Inc()
}

// RecordOverride increments the safe result override counter.
func (mc *MetricsCollector) RecordOverride() {
	if mc == nil {
		return
	}
	mc.overrides.Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
