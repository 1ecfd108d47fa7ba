package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal     prometheus.Counter
	RejectionsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_compliance_checks_total",
			Help: "Total number of compliance transfer checks evaluated",
		}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_compliance_rejections_total",
			Help: "Total number of compliance rejections by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementChecks() {
	m.ChecksTotal.Inc()
}

func (m *Metrics) IncrementRejections(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}
