package infra

import (
	"net/http"

	"scalper_go/internal/domain"
	"scalper_go/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes engine and transport counters on a private Prometheus registry.
// Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	ticksDropped  prometheus.Counter
	ordersSent    *prometheus.CounterVec
	ordersCancel  *prometheus.CounterVec
	ordersFilled  *prometheus.CounterVec
	requestErrors *prometheus.CounterVec
	reconnects    *prometheus.CounterVec

	channelLower prometheus.Gauge
	channelUpper prometheus.Gauge
	window       prometheus.Gauge
	entryFlag    *prometheus.GaugeVec
	openOrders   prometheus.Gauge
	connections  prometheus.Gauge
}

// NewMetrics registers every collector under the "scalper" namespace.
func NewMetrics() *Metrics {
	const ns = "scalper"
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ticks_total", Help: "Trade ticks processed.",
		}),
		ticksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ticks_dropped_total", Help: "Trade ticks dropped on a full inbox.",
		}),
		ordersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "orders_submitted_total", Help: "Orders submitted.",
		}, []string{"side", "kind"}),
		ordersCancel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "orders_canceled_total", Help: "Cancel requests issued.",
		}, []string{"side"}),
		ordersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "orders_filled_total", Help: "Entry orders filled.",
		}, []string{"side"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "request_errors_total", Help: "Failed exchange requests.",
		}, []string{"op"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "stream_reconnects_total", Help: "Websocket reconnect attempts.",
		}, []string{"stream"}),
		channelLower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "channel_lower", Help: "Lower channel bound.",
		}),
		channelUpper: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "channel_upper", Help: "Upper channel bound.",
		}),
		window: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "window_length", Help: "Price buffer length after evaluation.",
		}),
		entryFlag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "entry_flag", Help: "1 when the side may enter.",
		}, []string{"side"}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "open_orders", Help: "Tracked open entry orders.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_connections", Help: "Connected websocket streams.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.ticksDropped, m.ordersSent, m.ordersCancel, m.ordersFilled,
		m.requestErrors, m.reconnects, m.channelLower, m.channelUpper, m.window,
		m.entryFlag, m.openOrders, m.connections,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TickProcessed() { m.ticks.Inc() }

func (m *Metrics) TickDropped() { m.ticksDropped.Inc() }

// ChannelEvaluated records the outcome of one channel scan.
func (m *Metrics) ChannelEvaluated(res strategy.Result) {
	m.channelLower.Set(res.Channel.Lower.InexactFloat64())
	m.channelUpper.Set(res.Channel.Upper.InexactFloat64())
	m.window.Set(float64(res.Window))
	m.entryFlag.WithLabelValues(string(domain.SideBuy)).Set(boolGauge(res.EnterBuy))
	m.entryFlag.WithLabelValues(string(domain.SideSell)).Set(boolGauge(res.EnterSell))
}

func (m *Metrics) OrderSubmitted(side domain.Side, liquidation bool) {
	kind := "entry"
	if liquidation {
		kind = "liquidation"
	}
	m.ordersSent.WithLabelValues(string(side), kind).Inc()
}

func (m *Metrics) OrderCanceled(side domain.Side) {
	m.ordersCancel.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) OrderFilled(side domain.Side) {
	m.ordersFilled.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) OpenOrders(n int) { m.openOrders.Set(float64(n)) }

// RecordError records a failed request for op ("submit", "cancel", "keepalive", ...).
func (m *Metrics) RecordError(op string) {
	m.requestErrors.WithLabelValues(op).Inc()
}

// RecordReconnect counts a reconnect attempt of a stream.
func (m *Metrics) RecordReconnect(stream string) {
	m.reconnects.WithLabelValues(stream).Inc()
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() { m.connections.Inc() }

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() { m.connections.Dec() }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
