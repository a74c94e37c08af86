// Package metrics exposes the gateway's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trade_gateway"

type Metrics struct {
	connectionsRejected *prometheus.CounterVec
	eventsBroadcast     *prometheus.CounterVec
	turnsCompleted      prometheus.Counter
	redactions          prometheus.Counter
	sessionsFinished    *prometheus.CounterVec
	marketRequests      *prometheus.CounterVec
	marketLatency       prometheus.Histogram
}

// Gauges are sampled on scrape.
type Gauges interface {
	Sessions() int
	Connections() int
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_rejected_total",
			Help:      "Websocket connection attempts rejected before joining a session.",
		}, []string{"reason"}),
		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Debate events broadcast, by action type.",
		}, []string{"type"}),
		turnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_turns_total",
			Help:      "Debate turns completed.",
		}),
		redactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_redactions_total",
			Help:      "Promissory phrases redacted from generated arguments.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debate_sessions_finished_total",
			Help:      "Debate sessions that reached a terminal status.",
		}, []string{"status"}),
		marketRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_requests_total",
			Help:      "Market data queries by serving source.",
		}, []string{"source"}),
		marketLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "market_request_latency_ms",
			Help:      "Market data query latency in milliseconds.",
			Buckets:   []float64{1, 5, 25, 100, 250, 1000, 5000, 10000},
		}),
	}

	reg.MustRegister(
		m.connectionsRejected,
		m.eventsBroadcast,
		m.turnsCompleted,
		m.redactions,
		m.sessionsFinished,
		m.marketRequests,
		m.marketLatency,
	)
	return m
}

// RegisterGauges exports the live registry size.
func (m *Metrics) RegisterGauges(reg prometheus.Registerer, g Gauges) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Session ids with at least one subscriber.",
		}, func() float64 { return float64(g.Sessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open websocket subscriptions.",
		}, func() float64 { return float64(g.Connections()) }),
	)
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.eventsBroadcast.WithLabelValues(eventType).Inc()
}

func (m *Metrics) TurnCompleted(redacted int) {
	if m == nil {
		return
	}
	m.turnsCompleted.Inc()
	m.redactions.Add(float64(redacted))
}

func (m *Metrics) SessionFinished(status string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) MarketRequest(source string, latencyMS int64) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.marketRequests.WithLabelValues(source).Inc()
	m.marketLatency.Observe(float64(latencyMS))
}
