package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/retention"
)

// RetentionMetrics records retention job results. It implements
// retention.Observer.
//
// Metrics:
//   - custodian_retention_documents_total: documents by scope and result
//   - custodian_retention_runs_total: runs by mode and outcome
//   - custodian_retention_run_duration_seconds: run duration histogram
//   - custodian_retention_last_run_timestamp_seconds: end of the last run by mode
//   - custodian_retention_last_run_deleted: rows and objects removed by the last executed run
//   - custodian_retention_last_run_errors: errors recorded by the last run by mode
type RetentionMetrics struct {
	documentsTotal *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	lastRunTime    *prometheus.GaugeVec
	lastRunDeleted *prometheus.GaugeVec
	lastRunErrors  *prometheus.GaugeVec

	scopes *CardinalityLimiter
}

var _ retention.Observer = (*RetentionMetrics)(nil)

// NewRetentionMetrics creates and registers the retention metrics.
func NewRetentionMetrics(namespace string, registry prometheus.Registerer, scopes *CardinalityLimiter) *RetentionMetrics {
	const subsystem = "retention"
	rm := &RetentionMetrics{
		documentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "documents_total",
				Help:      "Documents processed by the retention job, by scope and result",
			},
			[]string{"scope", "result"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Retention runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of retention runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"mode"},
		),
		lastRunTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last retention run finished",
			},
			[]string{"mode"},
		),
		lastRunDeleted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_deleted",
				Help:      "Rows and objects removed by the last executed run",
			},
			[]string{"kind"},
		),
		lastRunErrors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_errors",
				Help:      "Errors recorded by the last retention run",
			},
			[]string{"mode"},
		),
		scopes: scopes,
	}

	registry.MustRegister(
		rm.documentsTotal,
		rm.runsTotal,
		rm.runDuration,
		rm.lastRunTime,
		rm.lastRunDeleted,
		rm.lastRunErrors,
	)
	return rm
}

// DocumentProcessed counts one document result.
func (rm *RetentionMetrics) DocumentProcessed(scope records.Scope, result string) {
	rm.documentsTotal.WithLabelValues(rm.scopes.Label(scope.String()), result).Inc()
}

// RunFinished records a completed run. Recovery runs count as executed or
// dry runs like any other.
func (rm *RetentionMetrics) RunFinished(run *records.RetentionRun, elapsed time.Duration) {
	mode := "execute"
	if run.DryRun {
		mode = "dry_run"
	}
	outcome := "success"
	switch {
	case run.Summary.Interrupted:
		outcome = "interrupted"
	case retention.DocumentErrors(run) > 0:
		outcome = "document_errors"
	case len(run.Errors) > 0:
		outcome = "scope_errors"
	}

	rm.runsTotal.WithLabelValues(mode, outcome).Inc()
	rm.runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	rm.lastRunTime.WithLabelValues(mode).Set(float64(run.FinishedAt.Unix()))
	rm.lastRunErrors.WithLabelValues(mode).Set(float64(len(run.Errors)))

	if !run.DryRun {
		c := run.DeletedCounts
		rm.lastRunDeleted.WithLabelValues("signing_files").Set(float64(c.SigningFiles))
		rm.lastRunDeleted.WithLabelValues("signature_spots").Set(float64(c.SignatureSpots))
		rm.lastRunDeleted.WithLabelValues("audit_events").Set(float64(c.AuditEvents))
		rm.lastRunDeleted.WithLabelValues("consents").Set(float64(c.Consents))
		rm.lastRunDeleted.WithLabelValues("otp_challenges").Set(float64(c.OTPChallenges))
		rm.lastRunDeleted.WithLabelValues("storage_objects").Set(float64(c.StorageObjects))
	}
}
