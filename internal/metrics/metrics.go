// Package metrics exposes prometheus collectors for batch, completion and report activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peerwarden"

// Result labels.
const (
	ResultTransitioned    = "transitioned"
	ResultDuplicate       = "duplicate"
	ResultDelivered       = "delivered"
	ResultFailed          = "failed"
	ResultAlreadyReported = "already_reported"
)

// Metrics groups every collector of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	batchesCreated     prometheus.Counter
	assignmentsCreated prometheus.Counter
	importFailures     prometheus.Counter
	completions        *prometheus.CounterVec
	reports            *prometheus.CounterVec
	passbackLatency    prometheus.Histogram
	jobQueueDepth      prometheus.Gauge
}

// New registers all collectors with registry. A nil registry uses the default one.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		batchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_created_total",
			Help:      "Batches imported and assigned.",
		}),
		assignmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_created_total",
			Help:      "Review assignments persisted.",
		}),
		importFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failures_total",
			Help:      "Submissions whose author could not be resolved during import.",
		}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion events by whether they changed the record.",
		}, []string{"result"}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Report delivery attempts by result.",
		}, []string{"result"}),
		passbackLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "passback_duration_seconds",
			Help:      "Time spent delivering a report to the gradebook, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		jobQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Report retry jobs waiting for a worker.",
		}),
	}
}

func (m *Metrics) BatchCreated(assignments, failures int) {
	if m == nil {
		return
	}
	m.batchesCreated.Inc()
	m.assignmentsCreated.Add(float64(assignments))
	m.importFailures.Add(float64(failures))
}

func (m *Metrics) Completion(result string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(result).Inc()
}

func (m *Metrics) Report(result string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(result).Inc()
}

func (m *Metrics) PassbackDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.passbackLatency.Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.jobQueueDepth.Set(float64(n))
}
