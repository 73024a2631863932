package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for credential operations.
type Metrics struct {
	CredentialsIssued    *prometheus.CounterVec
	CredentialsRevoked   prometheus.Counter
	VerificationsTotal   *prometheus.CounterVec
	IssueLatencySeconds  prometheus.Histogram
	VerifyLatencySeconds prometheus.Histogram
}

// New registers and returns credential metrics collectors.
func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_credentials_issued_total",
			Help: "Total credentials issued, labeled by type and attestation kind",
		}, []string{"credential_type", "attestation"}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beantrace_credentials_revoked_total",
			Help: "Total credentials flagged revoked",
		}),
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_credential_verifications_total",
			Help: "Total credential verifications, labeled by result",
		}, []string{"result"}),
		IssueLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beantrace_credential_issue_latency_seconds",
			Help:    "Latency of credential issuance in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		VerifyLatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beantrace_credential_verify_latency_seconds",
			Help:    "Latency of credential verification in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementIssued(credentialType string, thirdParty bool) {
	kind := "self"
	if thirdParty {
		kind = "third_party"
	}
	m.CredentialsIssued.WithLabelValues(credentialType, kind).Inc()
}

func (m *Metrics) IncrementVerification(result string) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
}
