// Package metrics exposes Prometheus observability for the tester: queue
// depth, worker utilization, phase durations, archiver dispositions,
// recorder row-insert counters and circuit-breaker state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for one tester process.
type Metrics struct {
	registry *prometheus.Registry

	phasesTotal    *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	pingResults    *prometheus.CounterVec
	archiverOutcome *prometheus.CounterVec
	recorderRows   *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec

	queueDepth      prometheus.Gauge
	workersBusy     prometheus.Gauge
	workersTotal    prometheus.Gauge
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000, 60000}

var global *Metrics

// Init initializes the global Prometheus metrics subsystem.
func Init(namespace string, buckets []float64) *Metrics {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		phasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phases_total",
				Help:      "Total worker phase attempts, by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_milliseconds",
				Help:      "Duration of worker phase attempts in milliseconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		pingResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ping_results_total",
				Help:      "Total debug-ping probe results, by verdict",
			},
			[]string{"verdict"},
		),

		archiverOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archiver_outcomes_total",
				Help:      "Total archiver dispositions, by outcome",
			},
			[]string{"outcome"},
		),

		recorderRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recorder_rows_total",
				Help:      "Total rows written by the recorder, by table",
			},
			[]string{"table"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per call type (0=closed, 1=open, 2=half_open)",
			},
			[]string{"call_type"},
		),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of pairs currently queued for a worker",
		}),

		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Number of worker goroutines currently processing a pair",
		}),

		workersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_total",
			Help:      "Configured worker pool size",
		}),
	}

	registry.MustRegister(
		m.phasesTotal, m.phaseDuration, m.pingResults, m.archiverOutcome,
		m.recorderRows, m.breakerState, m.queueDepth, m.workersBusy, m.workersTotal,
	)

	global = m
	return m
}

// Global returns the process-wide Metrics instance, calling
// Init("pairtester", nil) first if Init was never called.
func Global() *Metrics {
	if global == nil {
		return Init("pairtester", nil)
	}
	return global
}

// Handler returns an HTTP handler that exposes the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPhase records one worker phase attempt.
func (m *Metrics) RecordPhase(action string, durationMs int64, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.phasesTotal.WithLabelValues(action, outcome).Inc()
	m.phaseDuration.WithLabelValues(action).Observe(float64(durationMs))
}

// RecordPing records the verdict of one debug-ping probe.
func (m *Metrics) RecordPing(verdict string) {
	m.pingResults.WithLabelValues(verdict).Inc()
}

// RecordArchiverOutcome records one archiver disposition (archive or
// dbdone).
func (m *Metrics) RecordArchiverOutcome(outcome string) {
	m.archiverOutcome.WithLabelValues(outcome).Inc()
}

// RecordRecorderRow records one row written to a recorder table.
func (m *Metrics) RecordRecorderRow(table string) {
	m.recorderRows.WithLabelValues(table).Inc()
}

// SetBreakerState publishes a circuit breaker's numeric state for a call type.
func (m *Metrics) SetBreakerState(callType string, state float64) {
	m.breakerState.WithLabelValues(callType).Set(state)
}

// SetQueueDepth publishes the current work queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetWorkers publishes worker pool occupancy.
func (m *Metrics) SetWorkers(busy, total int) {
	m.workersBusy.Set(float64(busy))
	m.workersTotal.Set(float64(total))
}
