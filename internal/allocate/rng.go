package allocate

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// SourceFunc returns the random source for one region. It is called once per
// region and the source is never shared between goroutines.
type SourceFunc func(region string) rand.Source

// SubSeed derives a region's seed from the run seed, so results do not depend
// on the order or parallelism regions are processed with.
func SubSeed(seed uint64, region string) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(region)
	return d.Sum64()
}

// PCGSource is the default SourceFunc: a PCG generator keyed by the run
// seed and the region's sub-seed.
func PCGSource(seed uint64) SourceFunc {
	return func(region string) rand.Source {
		return rand.NewPCG(seed, SubSeed(seed, region))
	}
}

// shuffle is a Fisher–Yates permutation driven only by r.
func shuffle[T any](r *rand.Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
