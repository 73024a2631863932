package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for verification token operations.
type Metrics struct {
	TokensIssued     prometheus.Counter
	Redemptions      *prometheus.CounterVec
	CleanupDeletions *prometheus.CounterVec
}

// New registers and returns token metrics collectors.
func New() *Metrics {
	return &Metrics{
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beantrace_verification_tokens_issued_total",
			Help: "Total verification tokens issued",
		}),
		Redemptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_verification_token_redemptions_total",
			Help: "Total redemption attempts, labeled by result",
		}, []string{"result"}),
		CleanupDeletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beantrace_verification_token_cleanup_deletions_total",
			Help: "Tokens removed by the cleanup worker, labeled by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementRedemption(result string) {
	m.Redemptions.WithLabelValues(result).Inc()
}
