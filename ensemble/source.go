package ensemble

import (
	"encoding/binary"
	"math/rand/v2"
)

// NewSource returns the generator of a run. All the draws of the run come
// from it, in order, so equal seeds give equal ensembles.
func NewSource(seed uint64) *rand.Rand {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)

	return rand.New(rand.NewChaCha8(key))
}

// EntropySeed returns a seed taken from the runtime's entropy source. It is
// used once at the start of a run when no seed is configured.
func EntropySeed() uint64 {
	return rand.Uint64()
}
