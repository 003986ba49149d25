// Package hashspeed benchmarks candidate scoring hashes for the
// rendezvous router, the same way the teacher's own bench/micro/hashspeed
// compares xxhash against highwayhash: not to pick a winner for this
// repo (the spec mandates murmur3_32 for the scoring function), but to
// make the cost of that choice visible.
package hashspeed

import (
	"crypto/rand"
	"testing"

	"github.com/OneOfOne/xxhash"
	"github.com/minio/highwayhash"
	"github.com/spaolacci/murmur3"
)

var highwayKey = make([]byte, 32) // zero key: benchmark only, never used for routing

func payload(b *testing.B, n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		b.Fatal(err)
	}
	return buf
}

func BenchmarkMurmur3_32(b *testing.B) {
	buf := payload(b, 64)
	b.ResetTimer()
	for range b.N {
		_ = murmur3.Sum32(buf)
	}
}

func BenchmarkXXHash32(b *testing.B) {
	buf := payload(b, 64)
	b.ResetTimer()
	for range b.N {
		_ = xxhash.Checksum32(buf)
	}
}

func BenchmarkHighwayHash64(b *testing.B) {
	buf := payload(b, 64)
	b.ResetTimer()
	for range b.N {
		_ = highwayhash.Sum64(buf, highwayKey)
	}
}
