package service

import (
	"github.com/layer-3/certify/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service's prometheus collectors
type Metrics struct {
	Verifications *prometheus.CounterVec
	LedgerCalls   *prometheus.HistogramVec
	ProofsIssued  prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certify",
			Name:      "verifications_total",
			Help:      "Ownership verifications by final state and failure reason.",
		}, []string{"state", "reason"}),
		LedgerCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "certify",
			Name:      "ledger_call_duration_seconds",
			Help:      "Latency of ledger reads by method and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "result"}),
		ProofsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "certify",
			Name:      "proofs_issued_total",
			Help:      "Shareable ownership proofs issued.",
		}),
	}
}

func (m *Metrics) observeVerdict(v core.Verdict) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(string(v.State), string(v.Reason)).Inc()
}

func (m *Metrics) observeProof() {
	if m == nil {
		return
	}
	m.ProofsIssued.Inc()
}
