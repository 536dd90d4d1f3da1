package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the engine's operational counters and gauges. A nil
// *Metrics is a valid no-op receiver, so replay runs can skip metrics
// entirely.
type Metrics struct {
	registry *prometheus.Registry

	positionsOpen   prometheus.Gauge
	capital         prometheus.Gauge
	dailyDrawdown   prometheus.Gauge
	weeklyDrawdown  prometheus.Gauge
	killSwitch      prometheus.Gauge
	tradesTotal     *prometheus.CounterVec
	vetoesTotal     *prometheus.CounterVec
	tickErrorsTotal *prometheus.CounterVec
	degradedStore   prometheus.Gauge
}

// NewMetrics creates the metric set on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.positionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_positions_open",
		Help: "Number of currently open positions",
	})
	m.capital = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_capital",
		Help: "Current account equity",
	})
	m.dailyDrawdown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_daily_drawdown",
		Help: "Drawdown since start of trading day",
	})
	m.weeklyDrawdown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_weekly_drawdown",
		Help: "Drawdown against the rolling weekly baseline",
	})
	m.killSwitch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_kill_switch_active",
		Help: "1 while the kill switch is active",
	})
	m.tradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_trades_total",
		Help: "Total number of position closes",
	}, []string{"instrument", "reason"})
	m.vetoesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_vetoes_total",
		Help: "Total number of vetoed proposals",
	}, []string{"rule"})
	m.tickErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_tick_errors_total",
		Help: "Total number of per-position tick evaluation faults",
	}, []string{"instrument"})
	m.degradedStore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradegate_degraded_durability",
		Help: "1 while snapshot persistence is failing",
	})

	m.registry.MustRegister(
		m.positionsOpen, m.capital, m.dailyDrawdown, m.weeklyDrawdown,
		m.killSwitch, m.tradesTotal, m.vetoesTotal, m.tickErrorsTotal,
		m.degradedStore,
	)
	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetPortfolio updates the portfolio-level gauges.
func (m *Metrics) SetPortfolio(openPositions int, capital, dailyDD, weeklyDD float64, killSwitch bool) {
	if m == nil {
		return
	}
	m.positionsOpen.Set(float64(openPositions))
	m.capital.Set(capital)
	m.dailyDrawdown.Set(dailyDD)
	m.weeklyDrawdown.Set(weeklyDD)
	if killSwitch {
		m.killSwitch.Set(1)
	} else {
		m.killSwitch.Set(0)
	}
}

// RecordTrade counts a position close.
func (m *Metrics) RecordTrade(instrument, reason string) {
	if m == nil {
		return
	}
	m.tradesTotal.WithLabelValues(instrument, reason).Inc()
}

// RecordVeto counts a rejected proposal.
func (m *Metrics) RecordVeto(rule string) {
	if m == nil {
		return
	}
	m.vetoesTotal.WithLabelValues(rule).Inc()
}

// RecordTickError counts a per-position evaluation fault.
func (m *Metrics) RecordTickError(instrument string) {
	if m == nil {
		return
	}
	m.tickErrorsTotal.WithLabelValues(instrument).Inc()
}

// SetDegradedDurability flags whether snapshot persistence is failing.
func (m *Metrics) SetDegradedDurability(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.degradedStore.Set(1)
	} else {
		m.degradedStore.Set(0)
	}
}
