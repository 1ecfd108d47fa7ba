package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	created       prometheus.Counter
	claims        prometheus.Counter
	claimedAmount prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_distribution_created_total",
			Help: "Distributions created.",
		}),
		claims: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_distribution_claims_total",
			Help: "Successful profit claims.",
		}),
		claimedAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_distribution_claimed_amount_total",
			Help: "Total payment-asset amount claimed.",
		}),
	}
}

func (m *Metrics) IncrementCreated()            { m.created.Inc() }
func (m *Metrics) ObserveClaim(amount float64)  { m.claims.Inc(); m.claimedAmount.Add(amount) }
