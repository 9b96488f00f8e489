package cache

import (
	"errors"
	"fmt"

	"github.com/memento-kv/memento/pkg/hash"
)

// Router owns a fixed, ordered set of shards and forwards each key to the
// shard at hash.Sum(key) mod ShardCount. The shard slice never changes after
// NewRouter returns, so the router itself takes no lock: operations on
// different shards run fully in parallel.
//
// Example:
//
//	router, err := cache.NewRouter(4, cache.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer router.Close()
//
//	_ = router.Add("user:1", "alice")
//	value, found, err := router.Get("user:1")
type Router struct {
	shards  []*Shard
	metrics *Metrics
}

// NewRouter creates a router with shardCount empty shards.
func NewRouter(shardCount int, opts ...Option) (*Router, error) {
	if shardCount < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, shardCount)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Router{
		shards:  make([]*Shard, shardCount),
		metrics: o.metrics,
	}
	for i := range r.shards {
		r.shards[i] = newShard(i, o)
	}

	o.logger.WithField("shards", shardCount).Debug("cache router created")
	return r, nil
}

// ShardCount returns the number of shards, fixed at construction.
func (r *Router) ShardCount() int {
	return len(r.shards)
}

// ShardIndex returns the index of the shard that owns key. The empty key is
// rejected with an *InvalidKeyError.
func (r *Router) ShardIndex(key string) (int, error) {
	idx, err := hash.Index(key, len(r.shards))
	if errors.Is(err, hash.ErrEmptyKey) {
		return 0, &InvalidKeyError{Key: key}
	}
	return idx, err
}

// Shard returns the shard that owns key.
func (r *Router) Shard(key string) (*Shard, error) {
	idx, err := r.ShardIndex(key)
	if err != nil {
		return nil, err
	}
	return r.shards[idx], nil
}

// Add stores value under key in the key's shard.
func (r *Router) Add(key, value string) error {
	s, err := r.Shard(key)
	if err == nil {
		err = s.Add(key, value)
	}
	if err != nil {
		r.metrics.observeOp("add", resultError)
		return err
	}
	r.metrics.observeOp("add", resultStored)
	return nil
}

// Get looks key up in its shard. A missing key is reported with found set to
// false and a nil error.
func (r *Router) Get(key string) (value string, found bool, err error) {
	s, err := r.Shard(key)
	if err == nil {
		value, found, err = s.Get(key)
	}
	switch {
	case err != nil:
		r.metrics.observeOp("get", resultError)
	case found:
		r.metrics.observeOp("get", resultHit)
	default:
		r.metrics.observeOp("get", resultMiss)
	}
	return value, found, err
}

// Len returns the total number of entries across all shards. Shards are
// counted one at a time, so the total is not a snapshot under concurrent
// writes.
func (r *Router) Len() int {
	n := 0
	for _, s := range r.shards {
		n += s.Len()
	}
	return n
}

// WaitIdle blocks until every shard has run its scheduled sweeps.
func (r *Router) WaitIdle() {
	for _, s := range r.shards {
		s.WaitIdle()
	}
}

// Close stops every shard's sweeper. Operations after Close return ErrClosed.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.shards {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
