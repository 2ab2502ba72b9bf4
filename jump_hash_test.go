package xcomm

import (
	"fmt"
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkJumpHash(b *testing.B) {
	key := rand.Uint64()
	for i := 0; i < b.N; i++ {
		jumpHash(key, 20)
	}
}

func TestJumpHashRange(t *testing.T) {
	const buckets = 20
	for i := 0; i < 100000; i++ {
		hash := jumpHash(rand.Uint64(), buckets)
		require.GreaterOrEqual(t, hash, 0)
		require.Less(t, hash, buckets)
	}
	assert.Equal(t, 0, jumpHash(42, 1))
}

func TestJumpHashDistribution(t *testing.T) {
	const buckets = 10
	const keys = 200000
	var counters [buckets]int
	for i := 0; i < keys; i++ {
		counters[jumpHash(rand.Uint64(), buckets)]++
	}
	for bucket, count := range counters {
		t.Logf("%d: %d", bucket, count)
		assert.InDelta(t, keys/buckets, count, keys/buckets/10, "bucket %d", bucket)
	}
}

func TestJumpHashMovesFewKeys(t *testing.T) {
	moved := 0
	for key := uint64(0); key < 10000; key++ {
		if jumpHash(key, 10) != jumpHash(key, 11) {
			moved++
		}
	}
	assert.Less(t, moved, 1500)
}

func TestDialOrder(t *testing.T) {
	ips := []net.IP{
		net.IPv4(10, 0, 0, 1),
		net.IPv4(10, 0, 0, 2),
		net.IPv4(10, 0, 0, 3),
	}
	assert.Equal(t, ips, dialOrder("", ips))
	assert.Equal(t, ips[:1], dialOrder("modem", ips[:1]))

	starts := map[string]bool{}
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("socket-%d", i)
		ordered := dialOrder(name, ips)
		require.Len(t, ordered, 3)
		assert.ElementsMatch(t, ips, ordered)
		assert.Equal(t, ordered, dialOrder(name, ips))
		starts[ordered[0].String()] = true
	}
	assert.Len(t, starts, 3)
	assert.Equal(t, "10.0.0.1", ips[0].String())
}
