package cache

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the cache. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	sweeps     *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	entries    *prometheus.GaugeVec
}

// Operation results used as the "result" label.
const (
	resultStored = "stored"
	resultHit    = "hit"
	resultMiss   = "miss"
	resultError  = "error"
)

// NewMetrics creates the cache collectors and registers them with reg.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	metrics, err := cache.NewMetrics(reg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	router, err := cache.NewRouter(4, cache.WithMetrics(metrics))
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memento",
				Name:      "operations_total",
				Help:      "Cache operations by command and result",
			},
			[]string{"op", "result"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memento",
				Name:      "sweeps_total",
				Help:      "Aging sweeps completed per shard",
			},
			[]string{"shard"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memento",
				Name:      "evictions_total",
				Help:      "Entries removed by aging sweeps per shard",
			},
			[]string{"shard"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "memento",
				Name:      "entries",
				Help:      "Entries currently stored per shard",
			},
			[]string{"shard"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.sweeps, m.evictions, m.entries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOp(op, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeSweep(shard, evicted, remaining int) {
	if m == nil {
		return
	}
	label := strconv.Itoa(shard)
	m.sweeps.WithLabelValues(label).Inc()
	m.evictions.WithLabelValues(label).Add(float64(evicted))
	m.entries.WithLabelValues(label).Set(float64(remaining))
}

func (m *Metrics) setEntries(shard, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(strconv.Itoa(shard)).Set(float64(n))
}
