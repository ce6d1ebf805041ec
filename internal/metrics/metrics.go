// Package metrics records operation outcomes with Prometheus collectors. A
// nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels.
const (
	ResultOK           = "ok"
	ResultInvalidInput = "invalid_input"
	ResultConflict     = "conflict"
	ResultNotFound     = "not_found"
	ResultError        = "error"
)

// Import row outcomes.
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	importRows *prometheus.CounterVec
	restored   *prometheus.CounterVec
	reclaims   *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rapor_operations_total",
			Help: "Engine operations by name and result",
		}, []string{"op", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rapor_operation_duration_seconds",
			Help:    "Engine operation latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rapor_import_rows_total",
			Help: "Imported rows by target and outcome",
		}, []string{"target", "outcome"}),
		restored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rapor_restored_records_total",
			Help: "Records written by restore, by record set",
		}, []string{"set"}),
		reclaims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rapor_reclaim_total",
			Help: "Post-commit maintenance runs by step and status",
		}, []string{"step", "status"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Operation records one finished engine operation.
func (r *Recorder) Operation(op, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result).Inc()
	r.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ImportRows adds n rows with the given outcome for target.
func (r *Recorder) ImportRows(target, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.importRows.WithLabelValues(target, outcome).Add(float64(n))
}

// Restored adds n records written to one record set by restore.
func (r *Recorder) Restored(set string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.restored.WithLabelValues(set).Add(float64(n))
}

// Reclaim records one maintenance step outcome.
func (r *Recorder) Reclaim(step string, err error) {
	if r == nil {
		return
	}
	status := ResultOK
	if err != nil {
		status = ResultError
	}
	r.reclaims.WithLabelValues(step, status).Inc()
}

// WriteTextfile writes the current metrics to path in the node_exporter
// textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
