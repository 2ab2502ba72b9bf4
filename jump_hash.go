package xcomm

import (
	"net"

	"github.com/cespare/xxhash/v2"
)

const jumpMultiplier = uint64(2862933555777941757)

// jumpHash places key in one of buckets. Growing buckets by one moves only
// 1/buckets of the keys.
func jumpHash(key uint64, buckets int) int {
	b, j := int64(-1), int64(0)
	for j < int64(buckets) {
		b = j
		key = key*jumpMultiplier + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}

// dialOrder rotates the resolved addresses so that sockets with different
// names spread over a multi-address host while each name keeps starting
// from the same address. ips is not modified.
func dialOrder(name string, ips []net.IP) []net.IP {
	if name == "" || len(ips) < 2 {
		return ips
	}
	start := jumpHash(xxhash.Sum64String(name), len(ips))
	if start == 0 {
		return ips
	}
	ordered := make([]net.IP, 0, len(ips))
	ordered = append(ordered, ips[start:]...)
	return append(ordered, ips[:start]...)
}
