package monitoring

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/wifictl/control"
	"github.com/sarchlab/wifictl/sim"
)

// Metrics bundles the Prometheus metrics of a running control loop. Attach it
// to the loop with AcceptHook(m.Hook()).
type Metrics struct {
	gatherer prometheus.Gatherer

	Exchanges       prometheus.Counter
	ExchangeLatency prometheus.Histogram
	Cycles          prometheus.Counter
	SkippedApplies  prometheus.Counter
	TxPower         prometheus.Gauge
	SimTime         prometheus.Gauge
}

// NewMetrics registers the loop metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	m.Exchanges, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifictl_exchanges_total",
		Help: "Number of telemetry/action exchanges with the control process.",
	}))
	if err != nil {
		return nil, err
	}

	m.ExchangeLatency, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wifictl_exchange_duration_seconds",
		Help:    "Wall-clock time of one exchange.",
		Buckets: []float64{1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 0.01, 0.05, 0.1, 0.5, 1},
	}))
	if err != nil {
		return nil, err
	}

	m.Cycles, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifictl_cycles_total",
		Help: "Number of completed control cycles.",
	}))
	if err != nil {
		return nil, err
	}

	m.SkippedApplies, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifictl_skipped_applies_total",
		Help: "Cycles whose decision could not be applied to the AP radio.",
	}))
	if err != nil {
		return nil, err
	}

	m.TxPower, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifictl_ap_tx_power_dbm",
		Help: "Transmit power last applied to the AP radio.",
	}))
	if err != nil {
		return nil, err
	}

	m.SimTime, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifictl_sim_time_seconds",
		Help: "Simulated time of the last completed cycle.",
	}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("register metric: %w", err)
}

// Hook returns a hook that updates the metrics from control loop events.
func (m *Metrics) Hook() sim.Hook {
	return sim.HookFunc(m.observe)
}

func (m *Metrics) observe(ctx sim.HookCtx) {
	switch ctx.Pos {
	case control.HookPosExchange:
		rec, ok := ctx.Item.(control.ExchangeRecord)
		if !ok {
			return
		}

		m.Exchanges.Inc()
		m.ExchangeLatency.Observe(rec.Latency)
	case control.HookPosCycleEnd:
		rec, ok := ctx.Item.(control.CycleRecord)
		if !ok {
			return
		}

		m.Cycles.Inc()
		m.SimTime.Set(float64(rec.Time))

		if rec.Applied {
			m.TxPower.Set(rec.NewTxPower)
		} else {
			m.SkippedApplies.Inc()
		}
	}
}

// Handler exposes the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
