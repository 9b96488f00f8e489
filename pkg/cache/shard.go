package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	// SweepEvery is the number of writes to a shard that schedules one sweep.
	SweepEvery = 5

	// MaxAge is the age at which a sweep evicts an entry. An entry that is
	// neither written nor read across MaxAge sweeps of its shard is removed.
	MaxAge = 5
)

type entry struct {
	value string
	age   atomic.Uint32
}

// Shard is one lock-protected partition of the key space.
//
// Writes reset an entry's age and count toward the next sweep; reads reset
// the age of the entry they hit. Every SweepEvery writes the shard schedules a
// sweep, which ages every entry by one and evicts those that reach MaxAge.
// Sweeps run on a single goroutine owned by the shard and take the exclusive
// lock for their whole pass, so they never interleave with Add or Get.
type Shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
	writes  int // writes since the last scheduled sweep
	pending int // sweeps scheduled but not yet run
	closed  bool
	idle    *sync.Cond

	id      int
	opts    options
	log     *logrus.Entry
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewShard creates an empty shard. Unless WithSynchronousSweep is given, it
// starts the shard's sweeper goroutine; call Close to stop it.
func NewShard(opts ...Option) *Shard {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newShard(0, o)
}

func newShard(id int, o options) *Shard {
	s := &Shard{
		entries: make(map[string]*entry),
		id:      id,
		opts:    o,
		log:     o.logger.WithField("shard", id),
	}
	s.idle = sync.NewCond(&s.mu)

	if !o.synchronous {
		s.wake = make(chan struct{}, 1)
		s.done = make(chan struct{})
		s.stopped = make(chan struct{})
		go s.runSweeper()
	}
	return s
}

// Add stores value under key with age zero, replacing any previous value.
// Every SweepEvery-th call schedules a sweep and returns without waiting for
// it.
func (s *Shard) Add(key, value string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverLocked("add", &err)

	if s.closed {
		return ErrClosed
	}

	s.entries[key] = &entry{value: value}
	s.writes++
	if s.writes >= SweepEvery {
		s.writes = 0
		s.scheduleSweepLocked()
	}
	s.opts.metrics.setEntries(s.id, len(s.entries))
	return nil
}

// Get returns the value stored under key and resets its age. found is false
// when the key is absent.
func (s *Shard) Get(key string) (value string, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defer s.recoverLocked("get", &err)

	if s.closed {
		return "", false, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	// sweeps hold the write lock, so this cannot race with aging
	e.age.Store(0)
	return e.value, true, nil
}

// Sweep ages every entry by one and evicts those that reach MaxAge. It
// returns the number of evicted entries. Scheduled sweeps call the same pass;
// Sweep is exported for callers that age a shard explicitly.
func (s *Shard) Sweep() (evicted int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverLocked("sweep", &err)

	if s.closed {
		return 0, ErrClosed
	}
	return s.sweepLocked(), nil
}

// Len returns the number of stored entries.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// WaitIdle blocks until every scheduled sweep has run.
func (s *Shard) WaitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// Close runs any scheduled sweeps, stops the sweeper goroutine and rejects
// further operations. It is safe to call more than once.
func (s *Shard) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.done != nil {
		close(s.done)
		<-s.stopped
	}
	return nil
}

// sweepLocked ages every entry before any eviction callback runs, so a
// failing callback cannot leave part of the shard unaged.
func (s *Shard) sweepLocked() int {
	var evicted []evictedEntry
	for key, e := range s.entries {
		if e.age.Add(1) < MaxAge {
			continue
		}
		delete(s.entries, key)
		evicted = append(evicted, evictedEntry{key: key, value: e.value})
	}

	s.opts.metrics.observeSweep(s.id, len(evicted), len(s.entries))
	if len(evicted) > 0 {
		s.log.WithFields(logrus.Fields{
			"evicted":   len(evicted),
			"remaining": len(s.entries),
		}).Debug("sweep evicted entries")
	}

	if s.opts.onEvict != nil {
		for _, ev := range evicted {
			s.notifyEvicted(ev)
		}
	}
	return len(evicted)
}

type evictedEntry struct {
	key, value string
}

func (s *Shard) notifyEvicted(ev evictedEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"key": ev.key, "panic": r}).Error("evict callback failed")
		}
	}()
	s.opts.onEvict(s.id, ev.key, ev.value)
}

func (s *Shard) scheduleSweepLocked() {
	if s.opts.synchronous {
		// the write is already stored; a failed sweep must not report it lost
		s.sweepGuarded()
		return
	}

	s.pending++
	select {
	case s.wake <- struct{}{}:
	default:
		// the sweeper already has a wake-up queued and will see pending
	}
}

func (s *Shard) runSweeper() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.drainSweeps()
		case <-s.done:
			s.drainSweeps()
			return
		}
	}
}

// drainSweeps runs pending sweeps one lock hold at a time so Add and Get can
// proceed between passes.
func (s *Shard) drainSweeps() {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		s.pending--
		s.sweepGuarded()
		s.mu.Unlock()
	}
}

func (s *Shard) sweepGuarded() {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("sweep failed")
		}
	}()
	s.sweepLocked()
}

// recoverLocked turns a panic raised while the shard lock is held into a
// ShardUnavailableError. It must be deferred after the lock so it runs
// before the unlock.
func (s *Shard) recoverLocked(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	s.log.WithFields(logrus.Fields{"op": op, "panic": r}).Error("recovered panic under shard lock")
	*err = &ShardUnavailableError{Shard: s.id, Op: op, Cause: fmt.Errorf("panic: %v", r)}
}
