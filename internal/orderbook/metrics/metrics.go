package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ordersCreated *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	tradeVolume   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ordersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_orderbook_orders_created_total",
			Help: "Orders created, by side.",
		}, []string{"side"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_orderbook_order_transitions_total",
			Help: "Order status transitions, by resulting status.",
		}, []string{"status"}),
		tradeVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "tranche_orderbook_units_traded_total",
			Help: "Total asset units moved by fills.",
		}),
	}
}

func (m *Metrics) IncrementOrdersCreated(side string) {
	m.ordersCreated.WithLabelValues(side).Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveTrade(units int64) {
	m.tradeVolume.Add(float64(units))
}
