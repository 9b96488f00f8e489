// Package cache implements memento's sharded in-memory store.
//
// A Router splits the key space across a fixed number of Shards. Each shard
// is a map guarded by its own reader/writer lock, so operations on distinct
// shards never contend.
//
// Entries expire by generational aging rather than by time or strict
// recency:
//   - adding a key stores it with age zero, replacing any previous value
//   - reading a key resets its age to zero
//   - every SweepEvery writes to a shard schedule a sweep of that shard
//   - a sweep increments every entry's age and evicts entries reaching MaxAge
//
// An entry that is not touched while its shard takes 25 writes is therefore
// evicted, and an entry that keeps being read survives indefinitely. There is
// no explicit delete.
//
// Sweeps run on one goroutine per shard, started by NewRouter (or NewShard)
// and stopped by Close. WithSynchronousSweep runs them inline instead.
//
// Example:
//
//	router, err := cache.NewRouter(4)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer router.Close()
//
//	if err := router.Add("session:abc", "user-42"); err != nil {
//		log.Printf("add failed: %v", err)
//	}
//	if value, found, err := router.Get("session:abc"); err == nil && found {
//		fmt.Println(value)
//	}
package cache
