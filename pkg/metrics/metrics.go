package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

// Metrics holds the book collectors on a private registry so tests and
// multiple nodes in one process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	orders       *prometheus.CounterVec
	trades       *prometheus.CounterVec
	tradedVolume *prometheus.CounterVec
	cancels      *prometheus.CounterVec
	matchSeconds prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "limitbook_orders_total",
			Help: "Limit orders accepted, by instrument and side.",
		}, []string{"instrument", "side"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "limitbook_trades_total",
			Help: "Trades executed, by instrument.",
		}, []string{"instrument"}),
		tradedVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "limitbook_traded_quantity_total",
			Help: "Base quantity traded, by instrument.",
		}, []string{"instrument"}),
		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "limitbook_cancels_total",
			Help: "Cancel requests, by instrument and result.",
		}, []string{"instrument", "result"}),
		matchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "limitbook_match_seconds",
			Help:    "Time spent in AddOrder, including matching.",
			Buckets: prometheus.ExponentialBuckets(0.000005, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.orders, m.trades, m.tradedVolume, m.cancels, m.matchSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OnTrade counts an executed trade.
func (m *Metrics) OnTrade(t orderbook.Trade) {
	m.trades.WithLabelValues(t.Instrument).Inc()
	m.tradedVolume.WithLabelValues(t.Instrument).Add(t.Quantity.InexactFloat64())
}

// ObserveOrder records an accepted order and how long AddOrder took.
func (m *Metrics) ObserveOrder(instrument string, side orderbook.Side, took time.Duration) {
	m.orders.WithLabelValues(instrument, side.String()).Inc()
	m.matchSeconds.Observe(took.Seconds())
}

// ObserveCancel records whether a cancel removed an order.
func (m *Metrics) ObserveCancel(instrument string, removed bool) {
	result := "noop"
	if removed {
		result = "removed"
	}
	m.cancels.WithLabelValues(instrument, result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
