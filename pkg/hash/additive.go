// Package hash provides the key hashing used to place keys.
//
// Sum is the additive spread hash that routes a key to one of a server's
// shards. It is deterministic for the life of a process and cheap to compute,
// and it is not meant to resist adversarial keys.
//
// Ring places keys on a fixed set of server nodes for clients that talk to
// more than one memento server.
package hash

import "errors"

// ErrEmptyKey is returned when hashing a key with no bytes.
var ErrEmptyKey = errors.New("hash: empty key")

// Sum returns the sum of every byte of key plus, for every adjacent pair of
// bytes, the absolute difference between them. A one-byte key has no pairs
// and hashes to its own value.
//
// Example:
//
//	Sum("ab") // 97 + 98 + |97-98| = 196
func Sum(key string) (uint64, error) {
	if len(key) == 0 {
		return 0, ErrEmptyKey
	}

	var total uint64
	for i := 0; i < len(key); i++ {
		total += uint64(key[i])
	}
	for i := 0; i+1 < len(key); i++ {
		total += absDiff(key[i], key[i+1])
	}
	return total, nil
}

// Index maps key to a bucket in [0, n). n must be positive.
func Index(key string, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("hash: bucket count must be positive")
	}
	sum, err := Sum(key)
	if err != nil {
		return 0, err
	}
	return int(sum % uint64(n)), nil
}

func absDiff(a, b byte) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}
