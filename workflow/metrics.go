package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects workflow metrics, all namespaced "codecrew_":
//
//   - turns_total (counter): completed and failed role turns.
//     Labels: role, status (success/error/timeout).
//   - turn_latency_ms (histogram): wall time of a turn including retries.
//     Labels: role, status.
//   - invoker_retries_total (counter): retried invocation attempts.
//     Labels: role, kind (provider/timeout/malformed_output).
//   - review_retries_total (counter): Reviewing -> Coding hand-backs.
//   - runs_total (counter): finished runs. Labels: reason.
//   - inflight_runs (gauge): runs currently streaming.
//   - tokens_total (counter): tokens reported by providers.
//     Labels: role, direction (input/output).
//
// Expose the registry for scraping with promhttp:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	turns         *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	reviewRetries prometheus.Counter
	runs          *prometheus.CounterVec
	inflightRuns  prometheus.Gauge
	tokens        *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates the workflow metrics and registers them with
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecrew",
			Name:      "turns_total",
			Help:      "Role turns by outcome",
		}, []string{"role", "status"}),
		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codecrew",
			Name:      "turn_latency_ms",
			Help:      "Role turn duration in milliseconds, including retries",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 120000, 300000},
		}, []string{"role", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecrew",
			Name:      "invoker_retries_total",
			Help:      "Retried role invocation attempts",
		}, []string{"role", "kind"}),
		reviewRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "codecrew",
			Name:      "review_retries_total",
			Help:      "Code review hand-backs to the coding role",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecrew",
			Name:      "runs_total",
			Help:      "Finished workflow runs by termination reason",
		}, []string{"reason"}),
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codecrew",
			Name:      "inflight_runs",
			Help:      "Workflow runs currently in progress",
		}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codecrew",
			Name:      "tokens_total",
			Help:      "Tokens reported by model providers",
		}, []string{"role", "direction"}),
	}
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordTurn records a finished turn and its latency.
func (pm *PrometheusMetrics) RecordTurn(role, status string, latency time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.turns.WithLabelValues(role, status).Inc()
	pm.turnLatency.WithLabelValues(role, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retried invocation.
func (pm *PrometheusMetrics) IncrementRetries(role string, kind InvokerErrorKind) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(role, kind.String()).Inc()
}

// IncrementReviewRetries counts one review hand-back.
func (pm *PrometheusMetrics) IncrementReviewRetries() {
	if !pm.isEnabled() {
		return
	}
	pm.reviewRetries.Inc()
}

// RecordTokens adds provider-reported token usage.
func (pm *PrometheusMetrics) RecordTokens(role string, input, output int) {
	if !pm.isEnabled() {
		return
	}
	if input > 0 {
		pm.tokens.WithLabelValues(role, "input").Add(float64(input))
	}
	if output > 0 {
		pm.tokens.WithLabelValues(role, "output").Add(float64(output))
	}
}

// RunStarted marks a run as in flight.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished records a terminated run.
func (pm *PrometheusMetrics) RunFinished(reason TerminationReason) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(reason.String()).Inc()
}

// Disable stops metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative and keep
// their values.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightRuns.Set(0)
}
