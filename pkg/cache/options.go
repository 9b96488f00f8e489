package cache

import (
	"io"

	"github.com/sirupsen/logrus"
)

// EvictFunc is called for every entry a sweep removes, once the sweep has
// aged the whole shard. It runs while the shard's lock is held and must not
// call back into the cache. A panic in fn is logged and does not stop the
// remaining callbacks.
type EvictFunc func(shard int, key, value string)

// Option configures a Router or Shard.
type Option func(*options)

type options struct {
	logger      *logrus.Logger
	metrics     *Metrics
	onEvict     EvictFunc
	synchronous bool
}

func defaultOptions() options {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return options{logger: discard}
}

// WithLogger sets the logger used for sweep and failure reports.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records operations, sweeps and evictions in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEvictFunc registers fn to observe evictions.
func WithEvictFunc(fn EvictFunc) Option {
	return func(o *options) { o.onEvict = fn }
}

// WithSynchronousSweep runs each sweep inside the Add that triggers it instead
// of on the shard's sweeper goroutine. No goroutines are started.
func WithSynchronousSweep() Option {
	return func(o *options) { o.synchronous = true }
}
