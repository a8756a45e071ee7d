// Package metrics exposes cycle, risk and position metrics on a private
// Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crypto-trading-assistant/internal/types"
)

const namespace = "assistant"

type Metrics struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	Signals       *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Orders        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	OpenPositions prometheus.Gauge
	OpenPnL       prometheus.Gauge
	DailyRealized prometheus.Gauge
	DailyTrades   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed cycles by symbol and outcome",
		}, []string{"symbol", "outcome"}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Aggregated signals by action",
		}, []string{"action"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_rejections_total",
			Help:      "Risk gate rejections by check",
		}, []string{"check"}),
		Orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Confirmed orders by side",
		}, []string{"side"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions in the book",
		}),
		OpenPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_pnl",
			Help:      "Unrealized P&L across open positions, quote currency",
		}),
		DailyRealized: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_realized_pnl",
			Help:      "Realized P&L for the current trading day",
		}),
		DailyTrades: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_trades",
			Help:      "Fills counted by the risk gate today",
		}),
	}
}

// ObserveCycle counts one finished cycle.
func (m *Metrics) ObserveCycle(res types.CycleResult) {
	m.Cycles.WithLabelValues(res.Symbol, string(res.Outcome)).Inc()
	m.CycleDuration.Observe(res.Duration.Seconds())
	if res.Signal != nil {
		m.Signals.WithLabelValues(string(res.Signal.Action)).Inc()
	}
	if res.Decision != nil && !res.Decision.Approved {
		m.Rejections.WithLabelValues(res.Decision.Check).Inc()
	}
	if res.Order != nil && res.Order.Success {
		side := "BUY"
		if res.ActionTaken.IsSell() {
			side = "SELL"
		}
		m.Orders.WithLabelValues(side).Inc()
	}
}

// SetBook updates the position gauges.
func (m *Metrics) SetBook(open int, openPnL float64) {
	m.OpenPositions.Set(float64(open))
	m.OpenPnL.Set(openPnL)
}

func (m *Metrics) SetDaily(realized float64, trades int) {
	m.DailyRealized.Set(realized)
	m.DailyTrades.Set(float64(trades))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
