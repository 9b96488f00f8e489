package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardAddGet(t *testing.T) {
	s := NewShard(WithSynchronousSweep())

	require.NoError(t, s.Add("a", "1"))
	value, found, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)

	t.Run("overwrite replaces", func(t *testing.T) {
		require.NoError(t, s.Add("a", "2"))
		value, found, err := s.Get("a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "2", value)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("miss is not an error", func(t *testing.T) {
		value, found, err := s.Get("missing")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, value)
	})
}

func TestShardAgingEvictsUntouchedEntry(t *testing.T) {
	s := NewShard(WithSynchronousSweep())

	require.NoError(t, s.Add("target", "v"))
	// 23 more writes: four sweeps, target reaches age 4
	for i := 0; i < 23; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}
	assert.Equal(t, 2, s.Len(), "target survives four sweeps")

	// the 25th write triggers the fifth sweep
	require.NoError(t, s.Add("filler", "x"))
	assert.Equal(t, 1, s.Len())

	_, found, err := s.Get("target")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShardTouchedEntrySurvives(t *testing.T) {
	t.Run("reads", func(t *testing.T) {
		s := NewShard(WithSynchronousSweep())
		require.NoError(t, s.Add("target", "v"))

		for round := 0; round < 100; round++ {
			for i := 0; i < 4; i++ {
				require.NoError(t, s.Add(fmt.Sprintf("filler-%d-%d", round, i), "x"))
			}
			value, found, err := s.Get("target")
			require.NoError(t, err)
			require.True(t, found, "round %d", round)
			assert.Equal(t, "v", value)
		}
	})

	t.Run("rewrites", func(t *testing.T) {
		s := NewShard(WithSynchronousSweep())
		for round := 0; round < 100; round++ {
			require.NoError(t, s.Add("target", fmt.Sprint(round)))
			for i := 0; i < 10; i++ {
				require.NoError(t, s.Add("filler", "x"))
			}
		}
		value, found, err := s.Get("target")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "99", value)
	})
}

func TestShardSweep(t *testing.T) {
	s := NewShard(WithSynchronousSweep())
	require.NoError(t, s.Add("a", "1"))
	require.NoError(t, s.Add("b", "2"))

	for i := 0; i < MaxAge-1; i++ {
		evicted, err := s.Sweep()
		require.NoError(t, err)
		assert.Zero(t, evicted)
		if i == 1 {
			_, _, err := s.Get("b")
			require.NoError(t, err)
		}
	}

	evicted, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, found, _ := s.Get("a")
	assert.False(t, found)
	_, found, _ = s.Get("b")
	assert.True(t, found)
}

func TestShardBackgroundSweeper(t *testing.T) {
	s := NewShard()
	defer s.Close()

	require.NoError(t, s.Add("target", "v"))
	for i := 0; i < 4*SweepEvery-1; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}
	s.WaitIdle()
	assert.Equal(t, 2, s.Len())

	for i := 0; i < SweepEvery; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}
	s.WaitIdle()

	_, found, err := s.Get("target")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShardEvictCallbackPanicKeepsWrite(t *testing.T) {
	var evictions int
	s := NewShard(WithSynchronousSweep(), WithEvictFunc(func(shard int, key, value string) {
		evictions++
		if evictions == 1 {
			panic("observer failed")
		}
	}))

	require.NoError(t, s.Add("old", "v"))
	for i := 0; i < 4*SweepEvery+3; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}

	// write 25 runs the fifth sweep, which evicts "old" and the observer panics
	require.NoError(t, s.Add("new", "stored"))
	assert.Equal(t, 1, evictions)

	value, found, err := s.Get("new")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "stored", value)

	_, found, err = s.Get("old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShardEvictCallbackPanicCompletesSweep(t *testing.T) {
	var evictions int
	s := NewShard(WithSynchronousSweep(), WithEvictFunc(func(shard int, key, value string) {
		evictions++
		panic("observer failed")
	}))

	old := &entry{value: "v"}
	old.age.Store(MaxAge - 1)
	s.entries["old"] = old
	older := &entry{value: "v"}
	older.age.Store(MaxAge - 1)
	s.entries["older"] = older
	for i := 0; i < 50; i++ {
		s.entries[fmt.Sprintf("key-%d", i)] = &entry{value: "x"}
	}

	evicted, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 2, evictions, "a panicking callback must not skip the others")

	require.Len(t, s.entries, 50)
	for key, e := range s.entries {
		assert.Equal(t, uint32(1), e.age.Load(), "entry %s was not aged", key)
	}
}

func TestShardPanicUnderLockIsRecovered(t *testing.T) {
	s := NewShard(WithSynchronousSweep())
	require.NoError(t, s.Add("a", "1"))

	failingAdd := func() (err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.recoverLocked("add", &err)
		panic("entry table corrupted")
	}

	err := failingAdd()
	var unavailable *ShardUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "add", unavailable.Op)
	assert.Contains(t, unavailable.Error(), "entry table corrupted")

	// the lock was released and the shard keeps working
	require.NoError(t, s.Add("fresh", "1"))
	value, found, err := s.Get("fresh")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)
}

func TestShardSweeperSurvivesPanic(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	s := NewShard(WithEvictFunc(func(shard int, key, value string) {
		mu.Lock()
		evicted = append(evicted, key)
		mu.Unlock()
		if key == "first" {
			panic("boom")
		}
	}))
	defer s.Close()

	require.NoError(t, s.Add("first", "v"))
	for i := 0; i < 5*SweepEvery-1; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}
	s.WaitIdle()

	require.NoError(t, s.Add("second", "v"))
	for i := 0; i < 5*SweepEvery-1; i++ {
		require.NoError(t, s.Add("filler", "x"))
	}
	s.WaitIdle()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, evicted, "first")
	assert.Contains(t, evicted, "second")
}

func TestShardClose(t *testing.T) {
	s := NewShard()
	require.NoError(t, s.Add("a", "1"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Add("a", "2"), ErrClosed)
	_, _, err := s.Get("a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Sweep()
	assert.ErrorIs(t, err, ErrClosed)

	done := make(chan struct{})
	go func() {
		s.WaitIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitIdle blocked on a closed shard")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r, err := NewRouter(1, WithMetrics(m), WithSynchronousSweep())
	require.NoError(t, err)

	require.NoError(t, r.Add("a", "1"))
	_, _, _ = r.Get("a")
	_, _, _ = r.Get("b")
	_ = r.Add("", "x")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add", resultStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add", resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("get", resultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("get", resultMiss)))

	for i := 0; i < 5*SweepEvery; i++ {
		require.NoError(t, r.Add("filler", "x"))
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(m.sweeps.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entries.WithLabelValues("0")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice fails")
}
