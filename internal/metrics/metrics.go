// Package metrics exposes the maker's Prometheus gauges and counters.
//
//   - quoter_fair_value{market}                 – current fair value (gauge)
//   - quoter_snipes_total{market}                – snipe detections (counter)
//   - quoter_orders_placed_total{market,side}    – orders placed (counter)
//   - quoter_orders_cancelled_total{market,side} – orders cancelled (counter)
//   - quoter_active_markets                      – size of the active set (gauge)
//
// Served over HTTP at /metrics in Prometheus text exposition format. There
// is no dashboard or GUI — metrics scraping is the only observability
// surface beyond the slog lines in cmd/marketmaker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the maker's Prometheus collectors behind one struct so
// tests can register an isolated registry instead of touching the global
// default one.
type Metrics struct {
	FairValue       *prometheus.GaugeVec
	Snipes          *prometheus.CounterVec
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	ActiveMarkets   prometheus.Gauge
}

// New creates the collector set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FairValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quoter_fair_value",
			Help: "Current fair-value yes-price in cents, per market.",
		}, []string{"market"}),
		Snipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoter_snipes_total",
			Help: "Number of snipe detections, per market.",
		}, []string{"market"}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoter_orders_placed_total",
			Help: "Orders placed, per market and side.",
		}, []string{"market", "side"}),
		OrdersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoter_orders_cancelled_total",
			Help: "Orders cancelled, per market and side.",
		}, []string{"market", "side"}),
		ActiveMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quoter_active_markets",
			Help: "Number of markets currently in the active set.",
		}),
	}

	reg.MustRegister(m.FairValue, m.Snipes, m.OrdersPlaced, m.OrdersCancelled, m.ActiveMarkets)
	return m
}
