package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	tests := []struct {
		key  string
		want uint64
	}{
		{key: "a", want: 97},
		{key: "ab", want: 97 + 98 + 1},
		{key: "ba", want: 98 + 97 + 1},
		{key: "abc", want: 97 + 98 + 99 + 1 + 1},
		{key: "aaa", want: 3 * 97},
		{key: "\x00\xff", want: 255 + 255},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.key), func(t *testing.T) {
			got, err := Sum(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSumEmptyKey(t *testing.T) {
	_, err := Sum("")
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Index("", 4)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestIndexIsStable(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key_%d", i)
		first, err := Index(key, 7)
		require.NoError(t, err)
		require.GreaterOrEqual(t, first, 0)
		require.Less(t, first, 7)

		for j := 0; j < 10; j++ {
			again, err := Index(key, 7)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestIndexRejectsNonPositiveBuckets(t *testing.T) {
	_, err := Index("k", 0)
	assert.Error(t, err)
}

func TestIndexSpread(t *testing.T) {
	counts := make([]int, 4)
	for i := 0; i < 1000; i++ {
		idx, err := Index(fmt.Sprintf("user:%d", i), len(counts))
		require.NoError(t, err)
		counts[idx]++
	}
	for idx, n := range counts {
		assert.Greater(t, n, 100, "bucket %d got too few keys", idx)
	}
}

func TestRing(t *testing.T) {
	ring, err := NewRing([]string{"node1:7366", "node2:7366", "node3:7366", "node1:7366"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"node1:7366", "node2:7366", "node3:7366"}, ring.Nodes())

	node := ring.Node("test_key_1")
	assert.NotEmpty(t, node)
	for i := 0; i < 10; i++ {
		assert.Equal(t, node, ring.Node("test_key_1"))
	}
}

func TestRingDistribution(t *testing.T) {
	ring, err := NewRing([]string{"node1:7366", "node2:7366", "node3:7366"}, 150)
	require.NoError(t, err)

	distribution := make(map[string]int)
	for i := 0; i < 1000; i++ {
		distribution[ring.Node(fmt.Sprintf("key_%d", i))]++
	}

	require.Len(t, distribution, 3)
	for node, count := range distribution {
		assert.True(t, count >= 200 && count <= 500, "poor distribution for %s: %d keys", node, count)
	}
}

func TestNewRingValidation(t *testing.T) {
	_, err := NewRing(nil, 10)
	assert.Error(t, err)

	_, err = NewRing([]string{""}, 10)
	assert.Error(t, err)
}
