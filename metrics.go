package logconf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCommit  = "commit"
	outcomeForget  = "forget"
	outcomeInvalid = "invalid"
)

// Metrics counts configuration transactions.  A nil *Metrics records
// nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewMetrics registers the configuration metrics with reg.  A nil reg
// registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logconf",
			Name:      "transactions_total",
			Help:      "Configuration transactions, by outcome (commit, forget or invalid).",
		}, []string{"outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logconf",
			Name:      "action_failures_total",
			Help:      "Configuration action failures which were logged and ignored, by phase.",
		}, []string{"phase"}),
	}
}

func (m *Metrics) transaction(outcome string) {
	if m == nil {
		return
	}

	m.transactions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) failure(phase string) {
	if m == nil {
		return
	}

	m.failures.WithLabelValues(phase).Inc()
}
