package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	assetsCreated prometheus.Counter
	deactivations prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		assetsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_registry_assets_created_total",
			Help: "Number of invoice tokens created.",
		}),
		deactivations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_registry_deactivations_total",
			Help: "Number of invoice tokens deactivated.",
		}),
	}
}

func (m *Metrics) IncrementAssetsCreated() { m.assetsCreated.Inc() }
func (m *Metrics) IncrementDeactivations() { m.deactivations.Inc() }
