package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MovementsTotal  *prometheus.CounterVec
	UnitsMoved      *prometheus.CounterVec
	ForcedTransfers prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MovementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_ledger_movements_total",
			Help: "Total number of committed ledger movements by kind",
		}, []string{"kind"}),
		UnitsMoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_ledger_units_moved_total",
			Help: "Total units moved by kind",
		}, []string{"kind"}),
		ForcedTransfers: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_ledger_forced_transfers_total",
			Help: "Total number of forced transfers executed",
		}),
	}
}

func (m *Metrics) ObserveMovement(kind string, amount int64) {
	m.MovementsTotal.WithLabelValues(kind).Inc()
	m.UnitsMoved.WithLabelValues(kind).Add(float64(amount))
}

func (m *Metrics) IncrementForcedTransfers() {
	m.ForcedTransfers.Inc()
}
