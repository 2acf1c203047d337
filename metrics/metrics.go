// Package metrics implements the Metrics Exporter (C14): the fixed series
// list in §4.13, registered via promauto at package init so any package
// can record against them without threading a registry through every
// constructor, plus the /metrics and /health handlers served on their own
// port. Grounded on the reference queue manager's promauto CounterVec/
// GaugeVec declarations, generalized from mailbox-quota series to the
// spec's worker/SMTP series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsProcessedTotal counts worker outcomes by app/queue/status
	// (§4.13).
	EmailsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailqueue_worker_emails_processed_total",
		Help: "Total emails the worker has finished processing, by outcome.",
	}, []string{"app_id", "queue", "status"})

	// EmailProcessingDuration observes end-to-end per-job worker latency
	// (§4.13's fixed bucket set).
	EmailProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailqueue_worker_email_processing_duration_seconds",
		Help:    "Time spent processing one email job end to end.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"app_id", "queue"})

	// EmailRetriesTotal counts transient-failure re-enqueues (§4.8, §4.13).
	EmailRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailqueue_worker_email_retries_total",
		Help: "Total transient-failure retries scheduled by the retry controller.",
	}, []string{"app_id", "queue"})

	// SMTPConnectionsActive tracks live pooled connections per relay host
	// (§4.13, §4.6).
	SMTPConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailqueue_worker_smtp_connections_active",
		Help: "Currently open pooled SMTP connections, by relay host.",
	}, []string{"host"})

	// SMTPSendDuration observes one SMTP DATA round trip (§4.13).
	SMTPSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailqueue_worker_smtp_send_duration_seconds",
		Help:    "Time spent in a single SMTP send attempt.",
		Buckets: prometheus.DefBuckets,
	}, []string{"host", "status"})

	// SMTPErrorsTotal counts SMTP failures by relay host and a coarse error
	// kind (dial, auth, send, timeout; §4.13).
	SMTPErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailqueue_worker_smtp_errors_total",
		Help: "Total SMTP send errors, by relay host and error kind.",
	}, []string{"host", "error_type"})

	// ActiveJobs is the in-flight job count across every worker goroutine in
	// this process (§4.13).
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailqueue_worker_active_jobs",
		Help: "Number of email jobs currently being processed by this worker process.",
	})

	// WorkerStatus is 1 while the worker dispatcher is accepting jobs, 0
	// once it has begun graceful shutdown (§4.13, §5 cancellation).
	WorkerStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailqueue_worker_status",
		Help: "1 if the worker is running, 0 if stopped.",
	})
)

// ObserveSend times an SMTP send attempt and records its outcome,
// collapsing the histogram/counter bookkeeping callers would otherwise
// duplicate at every call site.
func ObserveSend(host string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SMTPSendDuration.WithLabelValues(host, status).Observe(time.Since(start).Seconds())
}
