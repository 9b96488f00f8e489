package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK          = "ok"
	resultError       = "error"
	resultParseError  = "parse_error"
	resultLineTooLong = "line_too_long"

	unparsedQuery = "NONE"
)

// Metrics holds the connection and request collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	active   prometheus.Gauge
	accepted prometheus.Counter
	rejected prometheus.Counter
	requests *prometheus.CounterVec
}

// NewMetrics creates the server collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Client connections currently open",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "server",
			Name:      "connections_rejected_total",
			Help:      "Client connections refused because the limit was reached",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Request lines handled by query kind and result",
		}, []string{"query", "result"}),
	}

	for _, c := range []prometheus.Collector{m.active, m.accepted, m.rejected, m.requests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.active.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) connRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) request(kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = unparsedQuery
	}
	m.requests.WithLabelValues(kind, result).Inc()
}
