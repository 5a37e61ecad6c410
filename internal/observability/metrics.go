// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics instance, creating it on first
// use. Collectors register with the default Prometheus registry exactly
// once, so every binary shares this instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics("")
	})
	return defaultMetrics
}

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid: every observe method is a no-op on a nil receiver, so wiring
// metrics stays optional for tests and fixture runs.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal     *prometheus.CounterVec
	PipelineStageDuration *prometheus.HistogramVec
	RowsDropped           prometheus.Counter
	FeatureRowsComputed   prometheus.Counter

	// Domain service metrics
	ServiceRunsTotal      *prometheus.CounterVec
	ServiceRunDuration    *prometheus.HistogramVec
	ValidationChecksTotal *prometheus.CounterVec

	// Storage metrics
	RowsUpsertedTotal *prometheus.CounterVec
	ViewAppliesTotal  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ashare_data_lab"
	}

	return &Metrics{
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal state",
		}, []string{"state"}),
		PipelineStageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		RowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_dropped_total",
			Help:      "Total number of malformed raw rows dropped by the clean stage",
		}),
		FeatureRowsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "feature_rows_computed_total",
			Help:      "Total number of feature rows computed",
		}),
		ServiceRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "runs_total",
			Help:      "Total number of domain service operations by status",
		}, []string{"domain", "operation", "status"}),
		ServiceRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "run_duration_seconds",
			Help:      "Duration of domain service operations",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 1200},
		}, []string{"domain", "operation"}),
		ValidationChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "validation_checks_total",
			Help:      "Total number of validation check results",
		}, []string{"domain", "check", "result"}),
		RowsUpsertedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_upserted_total",
			Help:      "Total number of rows written by upsert outcome",
		}, []string{"table", "outcome"}),
		ViewAppliesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "view_applies_total",
			Help:      "Total number of materialized view applies by strategy",
		}, []string{"view", "strategy"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePipelineRun records one finished pipeline run.
func (m *Metrics) ObservePipelineRun(state string) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(state).Inc()
}

// ObserveStage records one pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveDropped counts malformed raw rows dropped by the clean stage.
func (m *Metrics) ObserveDropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsDropped.Add(float64(n))
}

// ObserveFeatureRows counts computed feature rows.
func (m *Metrics) ObserveFeatureRows(n int) {
	if m == nil || n == 0 {
		return
	}
	m.FeatureRowsComputed.Add(float64(n))
}

// ObserveServiceRun records one domain service operation.
func (m *Metrics) ObserveServiceRun(domain, operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ServiceRunsTotal.WithLabelValues(domain, operation, status).Inc()
	m.ServiceRunDuration.WithLabelValues(domain, operation).Observe(d.Seconds())
}

// ObserveValidationCheck records one validation check outcome.
func (m *Metrics) ObserveValidationCheck(domain, check string, passed bool) {
	if m == nil {
		return
	}
	result := "pass"
	if !passed {
		result = "fail"
	}
	m.ValidationChecksTotal.WithLabelValues(domain, check, result).Inc()
}

// ObserveUpsert records an upsert outcome breakdown for one table.
func (m *Metrics) ObserveUpsert(table string, inserted, updated, unchanged int64) {
	if m == nil {
		return
	}
	m.RowsUpsertedTotal.WithLabelValues(table, "inserted").Add(float64(inserted))
	m.RowsUpsertedTotal.WithLabelValues(table, "updated").Add(float64(updated))
	m.RowsUpsertedTotal.WithLabelValues(table, "unchanged").Add(float64(unchanged))
}

// ObserveViewApply records one materialized view apply.
func (m *Metrics) ObserveViewApply(view, strategy string) {
	if m == nil {
		return
	}
	m.ViewAppliesTotal.WithLabelValues(view, strategy).Inc()
}
