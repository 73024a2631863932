package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for attestation sessions.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	SessionsFinalized *prometheus.CounterVec
	SessionsAborted   *prometheus.CounterVec
	FinalizeLatency   prometheus.Histogram
}

// New registers and returns attestation metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beantrace_attestation_sessions_started_total",
			Help: "Sessions that reached AUTHORIZED",
		}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_attestation_auth_failures_total",
			Help: "Authorization failures at session start, labeled by reason",
		}, []string{"reason"}),
		SessionsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_attestation_sessions_finalized_total",
			Help: "Sessions finalized, labeled by decision",
		}, []string{"decision"}),
		SessionsAborted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_attestation_sessions_aborted_total",
			Help: "Sessions aborted, labeled by reason",
		}, []string{"reason"}),
		FinalizeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beantrace_attestation_finalize_duration_seconds",
			Help:    "Latency of the finalize transition including issuance",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
