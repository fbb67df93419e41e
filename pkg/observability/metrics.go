package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// ValidationTotal counts schema validations by outcome
	ValidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_validation_total",
			Help: "Total number of schema validations",
		},
		[]string{"dataset", "stage", "result"}, // result: ok, drift, error
	)

	// ValidationDuration measures schema validation duration in seconds
	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fpt_validation_duration_seconds",
			Help:    "Schema validation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4m
		},
		[]string{"dataset", "stage"},
	)

	// DatasetRows tracks the row count of the last validated dataset
	DatasetRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fpt_dataset_rows",
			Help: "Rows seen in the most recent validation",
		},
		[]string{"dataset", "stage"},
	)

	// TypeViolations counts values that did not match their declared type
	TypeViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_type_violations_total",
			Help: "Total number of values that did not match their declared type",
		},
		[]string{"dataset", "column"},
	)

	// FeatureRows tracks the number of rows in the last exported feature table
	FeatureRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fpt_feature_rows",
			Help: "Rows in the most recently exported feature table",
		},
	)

	// ExportsTotal counts feature table exports by format and status
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_exports_total",
			Help: "Total number of feature table exports",
		},
		[]string{"format", "status"},
	)

	// RunsTotal counts pipeline runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // status: success, failed
	)

	// RunDuration measures pipeline run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fpt_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~7m
		},
		[]string{"status"},
	)

	// ScheduledAttemptsTotal counts scheduled run attempts including retries
	ScheduledAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_scheduled_attempts_total",
			Help: "Total number of scheduled run attempts",
		},
		[]string{"status"},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpt_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordValidation records a finished validation
func RecordValidation(dataset, stage, result string, rows int, duration float64) {
	ValidationTotal.WithLabelValues(dataset, stage, result).Inc()
	ValidationDuration.WithLabelValues(dataset, stage).Observe(duration)
	DatasetRows.WithLabelValues(dataset, stage).Set(float64(rows))
}

// RecordTypeViolations adds count violations for a column
func RecordTypeViolations(dataset, column string, count int) {
	TypeViolations.WithLabelValues(dataset, column).Add(float64(count))
}

// RecordExport records an export attempt
func RecordExport(format, status string) {
	ExportsTotal.WithLabelValues(format, status).Inc()
}

// RecordRun records a finished pipeline run
func RecordRun(status string, duration float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.WithLabelValues(status).Observe(duration)
}

// RecordScheduledAttempt records one scheduled attempt
func RecordScheduledAttempt(status string) {
	ScheduledAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
