package hash

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
)

// DefaultVirtualNodes is the default number of ring positions per node.
const DefaultVirtualNodes = 150

// Ring is a consistent hash ring over a fixed node set. It is immutable after
// NewRing returns and safe for concurrent use.
//
// Each node is placed at virtualNodes positions; a key belongs to the first
// position at or after its own hash, wrapping at the end of the ring.
type Ring struct {
	owners map[uint32]string
	hashes []uint32
	nodes  []string
}

// NewRing builds a ring for nodes. Duplicate node names are collapsed. If
// virtualNodes is <= 0, DefaultVirtualNodes is used.
//
// Example:
//
//	ring, err := hash.NewRing([]string{"cache1:7366", "cache2:7366"}, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	node := ring.Node("user:123")
func NewRing(nodes []string, virtualNodes int) (*Ring, error) {
	if len(nodes) == 0 {
		return nil, errors.New("hash: ring needs at least one node")
	}
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}

	r := &Ring{owners: make(map[uint32]string)}
	seen := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if node == "" {
			return nil, errors.New("hash: empty node name")
		}
		if seen[node] {
			continue
		}
		seen[node] = true
		r.nodes = append(r.nodes, node)

		for i := 0; i < virtualNodes; i++ {
			h := ringHash(fmt.Sprintf("%s:%d", node, i))
			// first writer keeps a colliding position
			if _, taken := r.owners[h]; taken {
				continue
			}
			r.owners[h] = node
			r.hashes = append(r.hashes, h)
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
	return r, nil
}

// Node returns the node responsible for key.
func (r *Ring) Node(key string) string {
	h := ringHash(key)
	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.owners[r.hashes[idx]]
}

// Nodes returns the distinct nodes in the order they were given.
func (r *Ring) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// ringHash takes the first four bytes of the SHA-256 digest.
func ringHash(key string) uint32 {
	h := sha256.Sum256([]byte(key))
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}
