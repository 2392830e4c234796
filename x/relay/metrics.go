package relay

import (
	metricspkg "github.com/ciphernode/delegation-relayer/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all relay pipeline metrics.
type Metrics struct {
	registry *metricspkg.ComponentRegistry

	SubmissionsSucceeded prometheus.Counter
	SubmissionsFailed    *prometheus.CounterVec
	RecordsDismissed     prometheus.Counter
	RecordsDeferred      prometheus.Gauge
	BatchSize            prometheus.Histogram
	PassesTotal          *prometheus.CounterVec
}

// NewMetrics creates relay metrics on the process-wide registry.
func NewMetrics() *Metrics {
	return newMetrics(metricspkg.NewComponentRegistry("relay", ""))
}

// NewMetricsWith creates relay metrics on the given registry. Used by tests.
func NewMetricsWith(reg *metricspkg.ComponentRegistry) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg *metricspkg.ComponentRegistry) *Metrics {
	return &Metrics{
		registry: reg,

		SubmissionsSucceeded: reg.NewCounter(prometheus.CounterOpts{
			Name: "submissions_succeeded_total",
			Help: "Delegation submissions confirmed on the gateway",
		}),

		SubmissionsFailed: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_failed_total",
			Help: "Delegation submissions that failed, by stage",
		}, []string{"stage"}),

		RecordsDismissed: reg.NewCounter(prometheus.CounterOpts{
			Name: "records_dismissed_total",
			Help: "Queued delegations dropped because their anchoring block was reorged out",
		}),

		RecordsDeferred: reg.NewGauge(prometheus.GaugeOpts{
			Name: "records_deferred",
			Help: "Delegations deferred to the next pass because their block status is unknown",
		}),

		BatchSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of stable delegations submitted per pass",
			Buckets: metricspkg.CountBuckets,
		}),

		PassesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "passes_total",
			Help: "Relay passes, by result",
		}, []string{"result"}),
	}
}
