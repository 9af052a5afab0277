package telemetry

import (
	"net/http"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrowd"

// Metrics exports order, transfer and sweep counters on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	expired     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "transfers_total",
			Help:      "Outbound custody transfers by chain, leg and result.",
		}, []string{"chain", "leg", "result"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Expiry sweep runs by result.",
		}, []string{"result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "expired_orders_total",
			Help:      "Orders expired by the sweep.",
		}),
	}
	m.registry.MustRegister(
		m.transitions, m.transfers, m.sweeps, m.expired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OrderTransition(from, to domain.OrderStatus) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) TransferExecuted(chain domain.ChainKind, leg domain.TransferLeg, err error) {
	m.transfers.WithLabelValues(chain.String(), leg.String(), result(err)).Inc()
}

func (m *Metrics) SweepCompleted(expired int, err error) {
	m.sweeps.WithLabelValues(result(err)).Inc()
	if expired > 0 {
		m.expired.Add(float64(expired))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ ports.MetricsService = (*Metrics)(nil)
