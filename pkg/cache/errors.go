package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed Router or Shard.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidShardCount is returned by NewRouter for a shard count below one.
	ErrInvalidShardCount = errors.New("cache: shard count must be positive")
)

// InvalidKeyError is returned for a key that cannot be routed. The only such
// key is the empty string.
type InvalidKeyError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cache: invalid key %q: key must not be empty", e.Key)
}

// ShardUnavailableError is returned when an operation failed while holding a
// shard's lock. The lock has been released and the shard stays usable, so the
// caller may retry.
type ShardUnavailableError struct {
	Shard int
	Op    string
	Cause error
}

func (e *ShardUnavailableError) Error() string {
	return fmt.Sprintf("cache: shard %d unavailable during %s: %v", e.Shard, e.Op, e.Cause)
}

func (e *ShardUnavailableError) Unwrap() error { return e.Cause }
